package models

import "strconv"

// SourceKind identifies which acquirer produced the text for an extraction.
type SourceKind string

const (
	SourceKindText SourceKind = "text"
	SourceKindPDF  SourceKind = "pdf"
	SourceKindURL  SourceKind = "url"
)

// SourceInfo describes where extracted content came from. Display only.
type SourceInfo struct {
	Kind         SourceKind `json:"type"`
	Filename     string     `json:"filename,omitempty"`
	PageCount    int        `json:"pageCount,omitempty"`
	URL          string     `json:"url,omitempty"`
	Title        string     `json:"title,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	CharCount    int        `json:"charCount"`
}

// TextSource builds provenance for pasted text.
func TextSource(charCount int) SourceInfo {
	return SourceInfo{Kind: SourceKindText, CharCount: charCount}
}

// PDFSource builds provenance for an uploaded PDF.
func PDFSource(filename string, pageCount, charCount int) SourceInfo {
	return SourceInfo{Kind: SourceKindPDF, Filename: filename, PageCount: pageCount, CharCount: charCount}
}

// URLSource builds provenance for a scraped page.
func URLSource(r ScrapeResult) SourceInfo {
	return SourceInfo{
		Kind:         SourceKindURL,
		URL:          r.URL,
		Title:        r.Title,
		Manufacturer: r.Manufacturer,
		CharCount:    len([]rune(r.Text)),
	}
}

// DisplayName returns a human-readable label for the source.
func (s SourceInfo) DisplayName() string {
	switch s.Kind {
	case SourceKindPDF:
		if s.Filename == "" {
			return "PDF upload"
		}
		if s.PageCount > 0 {
			return s.Filename + " (" + strconv.Itoa(s.PageCount) + " pages)"
		}
		return s.Filename
	case SourceKindURL:
		if s.Title != "" {
			return s.Title
		}
		return s.URL
	default:
		return "Pasted text"
	}
}

// ScrapeResult is the normalized output of scraping a product page.
type ScrapeResult struct {
	Title        string `json:"title"`
	Text         string `json:"text"`
	URL          string `json:"url"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

package acquire

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/validation"
)

// MaxPDFChars bounds the text taken from a single document.
const MaxPDFChars = 60000

// PDFDocument is the text layer of an uploaded PDF.
type PDFDocument struct {
	Text      string
	PageCount int
	Truncated bool
}

// PDFAcquirer extracts the text layer of uploaded PDFs.
type PDFAcquirer struct {
	logger *slog.Logger
}

// NewPDFAcquirer returns a PDFAcquirer logging to logger.
func NewPDFAcquirer(logger *slog.Logger) *PDFAcquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFAcquirer{logger: logger}
}

// Acquire validates the upload and extracts its text. Scanned documents
// without a text layer fail with pdf.no_text.
func (a *PDFAcquirer) Acquire(file validation.FileInput) (PDFDocument, models.SourceInfo, error) {
	data, err := validation.ValidateFile(file)
	if err != nil {
		return PDFDocument{}, models.SourceInfo{}, err
	}

	pages, pageCount, err := readPDFText(data)
	if err != nil {
		a.logger.Warn("pdf parse failed", "filename", file.Name, "bytes", len(data), "error", err)
		ue := models.NewUserError(models.CodePDFParseFailed, "The PDF could not be read.").
			WithSuggestion("The file may be damaged or password protected. Try re-exporting it, or paste the text instead.")
		if errors.Is(err, pdf.ErrInvalidPassword) {
			ue = ue.WithDetail("encrypted", true)
		}
		return PDFDocument{}, models.SourceInfo{}, ue
	}

	text := normalizeWhitespace(strings.Join(pages, "\n\n"))
	if utf8.RuneCountInString(text) < validation.MinTextChars {
		return PDFDocument{}, models.SourceInfo{}, models.NewUserError(models.CodePDFNoText, "No readable text was found in the PDF.").
			WithSuggestion("The PDF may be a scanned image. Try a different PDF or paste the specifications as text.").
			WithDetail("pages", pageCount)
	}

	text, truncated := truncate(text, MaxPDFChars)
	if truncated {
		a.logger.Info("pdf text truncated", "filename", file.Name, "pages", pageCount, "limit", MaxPDFChars)
	}

	doc := PDFDocument{Text: text, PageCount: pageCount, Truncated: truncated}
	return doc, models.PDFSource(file.Name, pageCount, utf8.RuneCountInString(text)), nil
}

// readPDFText returns the plain text of every page. The reader panics on some
// malformed inputs, so panics are converted to errors.
func readPDFText(data []byte) (pages []string, pageCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, pageCount = nil, 0
			err = fmt.Errorf("pdf reader panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}

	pageCount = reader.NumPage()
	pages = make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, 0, fmt.Errorf("read page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages, pageCount, nil
}

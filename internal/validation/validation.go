// Package validation guards every pipeline entry point. Each validator
// returns either the accepted value or a *models.UserError; no network call
// is made before validation succeeds.
package validation

import (
	"bytes"
	"errors"
	"mime"
	"net/netip"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/productbridge/productbridge/internal/models"
)

const (
	// MinTextChars is the least amount of text worth sending to the model.
	MinTextChars = 50
	// MaxTextChars keeps prompts inside a practical context budget.
	MaxTextChars = 60000
	// MaxFileBytes caps PDF uploads.
	MaxFileBytes = 20 * 1024 * 1024
)

var pdfSignature = []byte("%PDF")

// ValidateText trims raw and checks its length in characters.
func ValidateText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(text)

	switch {
	case n == 0:
		return "", models.NewUserError(models.CodeTextEmpty, "No product text was provided.").
			WithSuggestion("Paste the manufacturer's product description or specification sheet.")
	case n < MinTextChars:
		return "", models.NewUserError(models.CodeTextTooShort, "The text is too short to extract product content from.").
			WithSuggestion("Paste at least 50 characters, ideally the full specification sheet.").
			WithDetail("chars", n)
	case n > MaxTextChars:
		return "", models.NewUserError(models.CodeTextTooLong, "The text is longer than 60,000 characters.").
			WithSuggestion("Trim marketing copy and keep the specification sections.").
			WithDetail("chars", n)
	}
	return text, nil
}

// ValidateURL checks that raw is an absolute http(s) URL pointing at a public
// host and returns its normalized form.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", models.NewUserError(models.CodeURLEmpty, "No URL was provided.").
			WithSuggestion("Paste the full address of the manufacturer's product page.")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", invalidURL()
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", models.NewUserError(models.CodeURLInvalidScheme, "Only http and https URLs are supported.").
			WithSuggestion("Use an address starting with https://.")
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", invalidURL()
	}
	if isBlockedHost(host) {
		return "", models.NewUserError(models.CodeURLBlockedHost, "This address points at a private or local network.").
			WithSuggestion("Use the public product page on the manufacturer's website.").
			WithDetail("host", host)
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func invalidURL() *models.UserError {
	return models.NewUserError(models.CodeURLInvalid, "The URL could not be understood.").
		WithSuggestion("Check the address for typos and include https://.")
}

func isBlockedHost(host string) bool {
	if host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") {
		return true
	}

	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		// Resolvers accept shorthand, decimal and hex IPv4 forms (127.1,
		// 2130706433, 0x7f000001). No real top-level domain is numeric.
		return isNumericHost(host)
	}
	return IsBlockedAddr(addr)
}

// IsBlockedAddr reports whether addr is loopback, private, link-local or
// unspecified. The fetcher applies it again to every address it dials.
func IsBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsUnspecified()
}

func isNumericHost(host string) bool {
	last := host[strings.LastIndexByte(host, '.')+1:]
	if last == "" {
		return false
	}
	if strings.HasPrefix(last, "0x") {
		return true
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FileInput describes an uploaded file.
type FileInput struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

// ValidateFile checks size, declared type and the %PDF signature. The
// signature is always checked because the declared type comes from the client.
func ValidateFile(f FileInput) ([]byte, error) {
	size := f.Size
	if size == 0 {
		size = int64(len(f.Data))
	}

	if size == 0 || len(f.Data) == 0 {
		return nil, models.NewUserError(models.CodePDFMissing, "No PDF file was uploaded.").
			WithSuggestion("Choose a PDF specification sheet to upload.")
	}
	if size > MaxFileBytes || int64(len(f.Data)) > MaxFileBytes {
		return nil, models.NewUserError(models.CodePDFTooLarge, "The PDF is larger than 20 MB.").
			WithSuggestion("Upload only the specification pages or compress the PDF.").
			WithDetail("bytes", size)
	}
	if f.MIMEType != "" {
		mediaType, _, err := mime.ParseMediaType(f.MIMEType)
		if err != nil || mediaType != "application/pdf" {
			return nil, models.NewUserError(models.CodePDFInvalidType, "Only PDF files are supported.").
				WithSuggestion("Export the document as PDF and try again.").
				WithDetail("mime_type", f.MIMEType)
		}
	}
	if !bytes.HasPrefix(f.Data, pdfSignature) {
		return nil, models.NewUserError(models.CodePDFInvalidSignature, "The file is not a valid PDF.").
			WithSuggestion("The file may have been renamed; upload the original PDF.")
	}
	return f.Data, nil
}

// ValidateContent checks a review payload before it is saved. The payload
// must be a JSON object whose four fields are arrays; element shapes are
// decoded leniently.
func ValidateContent(payload []byte) (models.ProductContent, error) {
	obj, err := models.DecodeContentObject(payload)
	if err != nil {
		return models.ProductContent{}, models.NewUserError(models.CodeContentInvalid, "The product content is not a valid document.").
			WithSuggestion("Run the extraction again before saving.")
	}

	content, err := models.NormalizeContent(obj, true)
	if err != nil {
		ue := models.NewUserError(models.CodeContentInvalidField, "The product content is missing a required list.").
			WithSuggestion("Run the extraction again before saving.")
		var fieldErr *models.FieldTypeError
		if errors.As(err, &fieldErr) {
			ue = ue.WithDetail("field", fieldErr.Field)
		}
		return models.ProductContent{}, ue
	}
	return content, nil
}

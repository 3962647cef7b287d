package models

import (
	"errors"
	"strings"
)

// UserError is the single error shape surfaced to operators. Code is a stable
// dot-namespaced identifier such as "pdf.no_text".
type UserError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *UserError) Error() string {
	if e.Suggestion != "" {
		return e.Code + ": " + e.Message + " (" + e.Suggestion + ")"
	}
	return e.Code + ": " + e.Message
}

// Namespace returns the part of the code before the first dot.
func (e *UserError) Namespace() string {
	ns, _, _ := strings.Cut(e.Code, ".")
	return ns
}

// NewUserError constructs a UserError without suggestion or details.
func NewUserError(code, message string) *UserError {
	return &UserError{Code: code, Message: message}
}

// WithSuggestion returns a copy carrying the given suggestion.
func (e *UserError) WithSuggestion(suggestion string) *UserError {
	cp := *e
	cp.Suggestion = suggestion
	return &cp
}

// WithDetail returns a copy with key set in Details.
func (e *UserError) WithDetail(key string, value any) *UserError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// AsUserError returns err unchanged when it is (or wraps) a *UserError and
// fallback otherwise. A nil err yields nil.
func AsUserError(err error, fallback *UserError) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if errors.As(err, &ue) && ue.Code != "" && ue.Message != "" {
		return ue
	}
	return fallback
}

// Error codes surfaced across the pipeline.
const (
	CodeTextEmpty    = "text.empty"
	CodeTextTooShort = "text.too_short"
	CodeTextTooLong  = "text.too_long"

	CodeURLEmpty         = "url.empty"
	CodeURLInvalid       = "url.invalid"
	CodeURLInvalidScheme = "url.invalid_scheme"
	CodeURLBlockedHost   = "url.blocked_host"
	CodeURLBlocked       = "url.blocked"
	CodeURLNotFound      = "url.not_found"
	CodeURLRateLimited   = "url.rate_limited"
	CodeURLHTTPError     = "url.http_error"
	CodeURLFetchFailed   = "url.fetch_failed"
	CodeURLTimeout       = "url.timeout"
	CodeURLNoContent     = "url.no_content"
	CodeURLScrapeFailed  = "url.scrape_failed"

	CodePDFMissing          = "pdf.missing"
	CodePDFTooLarge         = "pdf.too_large"
	CodePDFInvalidType      = "pdf.invalid_type"
	CodePDFInvalidSignature = "pdf.invalid_signature"
	CodePDFParseFailed      = "pdf.parse_failed"
	CodePDFNoText           = "pdf.no_text"

	CodeContentInvalid      = "content.invalid"
	CodeContentInvalidField = "content.invalid_field"

	CodeAIRetryFailed      = "ai.retry_failed"
	CodeAINoResponse       = "ai.no_response"
	CodeAIInvalidJSON      = "ai.invalid_json"
	CodeAINoContent        = "ai.no_content"
	CodeAIExtractionFailed = "ai.extraction_failed"

	CodeSaveInvalidProduct = "save.invalid_product"
	CodeSaveShopifyFailed  = "save.shopify_failed"
	CodeSaveShopifyError   = "save.shopify_error"
	CodeSaveFailed         = "save.failed"

	CodeLoadInvalidProduct = "load.invalid_product"
	CodeLoadNotFound       = "load.not_found"
	CodeLoadShopifyFailed  = "load.shopify_failed"
	CodeLoadShopifyError   = "load.shopify_error"

	CodeRequestInvalid = "request.invalid"

	CodeAuthUnauthorized = "auth.unauthorized"
)

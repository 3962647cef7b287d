package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/pipeline"
	"github.com/productbridge/productbridge/internal/shopify"
	"github.com/productbridge/productbridge/internal/validation"
)

const (
	maxJSONBodyBytes = 1 << 20
	// multipart framing on top of the largest accepted file
	maxUploadBytes = validation.MaxFileBytes + 1<<20
)

// Pipeline is the subset of the extraction service the handlers call.
type Pipeline interface {
	ExtractText(ctx context.Context, raw string) (pipeline.Extraction, error)
	ExtractPDF(ctx context.Context, file validation.FileInput) (pipeline.Extraction, error)
	ExtractURL(ctx context.Context, rawURL string) (pipeline.Extraction, error)
	Save(ctx context.Context, productID string, payload []byte) (shopify.SaveResult, error)
	Load(ctx context.Context, productID string) (models.ProductContent, error)
}

// Handler serves the extraction API.
type Handler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(p Pipeline, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipeline: p, logger: logger}
}

var (
	errExtractFailed = models.NewUserError(models.CodeAIExtractionFailed, "Product extraction failed unexpectedly.")
	errSaveFailed    = models.NewUserError(models.CodeSaveFailed, "Saving failed unexpectedly.")
	errLoadFailed    = models.NewUserError(models.CodeLoadShopifyFailed, "Could not load saved content.")
)

type extractTextRequest struct {
	Text string `json:"text"`
}

type extractURLRequest struct {
	URL string `json:"url"`
}

type saveRequest struct {
	ProductID string          `json:"productId"`
	Content   json.RawMessage `json:"content"`
}

// ExtractText handles POST /api/extract
func (h *Handler) ExtractText(w http.ResponseWriter, r *http.Request) {
	var req extractTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}

	result, err := h.pipeline.ExtractText(r.Context(), req.Text)
	if err != nil {
		writeError(w, err, errExtractFailed)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExtractPDF handles POST /api/extract-pdf with a multipart "file" field.
func (h *Handler) ExtractPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, err := readUpload(r, "file")
	if err != nil {
		writeError(w, err, nil)
		return
	}

	result, err := h.pipeline.ExtractPDF(r.Context(), file)
	if err != nil {
		writeError(w, err, errExtractFailed)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExtractURL handles POST /api/extract-url
func (h *Handler) ExtractURL(w http.ResponseWriter, r *http.Request) {
	var req extractURLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}

	result, err := h.pipeline.ExtractURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, err, errExtractFailed)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Save handles POST /api/save
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}

	result, err := h.pipeline.Save(r.Context(), req.ProductID, req.Content)
	if err != nil {
		writeError(w, err, errSaveFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"saved":   result,
	})
}

// LoadContent handles GET /api/products/{id}/content
func (h *Handler) LoadContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.pipeline.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, errLoadFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequest("The request body is too large.")
		}
		return badRequest("The request body must be a JSON object.").WithDetail("reason", err.Error())
	}
	return nil
}

// readUpload reads a multipart file field. A missing field yields an empty
// FileInput so validation reports it.
func readUpload(r *http.Request, field string) (validation.FileInput, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return validation.FileInput{}, models.NewUserError(models.CodePDFTooLarge, "The PDF is larger than 20 MB.").
				WithSuggestion("Upload a smaller file or paste the specifications as text.")
		}
		return validation.FileInput{}, badRequest("The upload must be multipart/form-data.")
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return validation.FileInput{}, nil
	}
	if err != nil {
		return validation.FileInput{}, badRequest("The uploaded file could not be read.")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxFileBytes+1))
	if err != nil {
		return validation.FileInput{}, badRequest("The uploaded file could not be read.")
	}

	return validation.FileInput{
		Name:     header.Filename,
		MIMEType: strings.TrimSpace(header.Header.Get("Content-Type")),
		Size:     header.Size,
		Data:     data,
	}, nil
}

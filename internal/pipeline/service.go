// Package pipeline runs acquisition, extraction, validation and persistence
// for one request at a time.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/productbridge/productbridge/internal/acquire"
	"github.com/productbridge/productbridge/internal/inference"
	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/metrics"
	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/shopify"
	"github.com/productbridge/productbridge/internal/validation"
)

// Extractor turns raw product text into structured content.
type Extractor interface {
	Extract(ctx context.Context, raw string) (models.ProductContent, error)
}

// PDFReader pulls the text layer out of an uploaded document.
type PDFReader interface {
	Acquire(file validation.FileInput) (acquire.PDFDocument, models.SourceInfo, error)
}

// PageScraper downloads a product page and extracts its text.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) (models.ScrapeResult, error)
}

// ContentStore persists content on a product.
type ContentStore interface {
	SaveProductContent(ctx context.Context, productID string, content models.ProductContent) (shopify.SaveResult, error)
	LoadProductContent(ctx context.Context, productID string) (models.ProductContent, error)
}

// Extraction is the result of an extract call.
type Extraction struct {
	Extracted models.ProductContent `json:"extracted"`
	Source    models.SourceInfo     `json:"source"`
}

// Deps are the collaborators of a Service. Store may be nil for local runs
// that never persist.
type Deps struct {
	Extractor Extractor
	PDF       PDFReader
	Scraper   PageScraper
	Store     ContentStore
	Metrics   *metrics.PipelineCollector
	Logger    *slog.Logger
}

// Service orchestrates the extraction pipeline.
type Service struct {
	text      acquire.TextAcquirer
	extractor Extractor
	pdf       PDFReader
	scraper   PageScraper
	store     ContentStore
	metrics   *metrics.PipelineCollector
	logger    *slog.Logger
}

// NewService creates a pipeline service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		extractor: deps.Extractor,
		pdf:       deps.PDF,
		scraper:   deps.Scraper,
		store:     deps.Store,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

var (
	errExtractFailed = models.NewUserError(models.CodeAIExtractionFailed, "Product extraction failed unexpectedly.").
		WithSuggestion("Try again. If the problem persists, try a different source.")
	errPDFFailed = models.NewUserError(models.CodePDFParseFailed, "The PDF could not be processed.").
		WithSuggestion("Try re-exporting the PDF, or paste the text instead.")
	errScrapeFailed = models.NewUserError(models.CodeURLScrapeFailed, "The page could not be processed.").
		WithSuggestion("Try again, or copy the specifications from the page and paste them as text.")
	errSaveFailed = models.NewUserError(models.CodeSaveFailed, "Saving failed unexpectedly.").
		WithSuggestion("Try saving again.")
	errLoadFailed = models.NewUserError(models.CodeLoadShopifyFailed, "Could not load saved content.").
		WithSuggestion("Reload the page and try again.")
)

// ExtractText extracts content from pasted text.
func (s *Service) ExtractText(ctx context.Context, raw string) (Extraction, error) {
	ctx = inference.WithSourceKind(ctx, models.SourceKindText)

	var text string
	var source models.SourceInfo
	err := s.stage(ctx, "acquire_text", func() (err error) {
		text, source, err = s.text.Acquire(raw)
		return err
	})
	if err != nil {
		return Extraction{}, s.fail(ctx, "extract_text", err, errExtractFailed)
	}

	return s.extract(ctx, "extract_text", text, source, errExtractFailed)
}

// ExtractPDF extracts content from an uploaded PDF.
func (s *Service) ExtractPDF(ctx context.Context, file validation.FileInput) (Extraction, error) {
	ctx = inference.WithSourceKind(ctx, models.SourceKindPDF)

	var doc acquire.PDFDocument
	var source models.SourceInfo
	err := s.stage(ctx, "acquire_pdf", func() (err error) {
		doc, source, err = s.pdf.Acquire(file)
		return err
	})
	if err != nil {
		return Extraction{}, s.fail(ctx, "extract_pdf", err, errPDFFailed)
	}

	return s.extract(ctx, "extract_pdf", doc.Text, source, errExtractFailed)
}

// ExtractURL scrapes a product page and extracts content from it.
func (s *Service) ExtractURL(ctx context.Context, rawURL string) (Extraction, error) {
	ctx = inference.WithSourceKind(ctx, models.SourceKindURL)

	var page models.ScrapeResult
	err := s.stage(ctx, "acquire_url", func() (err error) {
		page, err = s.scraper.Scrape(ctx, rawURL)
		return err
	})
	if err != nil {
		return Extraction{}, s.fail(ctx, "extract_url", err, errScrapeFailed)
	}

	return s.extract(ctx, "extract_url", page.Text, models.URLSource(page), errExtractFailed)
}

func (s *Service) extract(ctx context.Context, intent, text string, source models.SourceInfo, fallback *models.UserError) (Extraction, error) {
	var content models.ProductContent
	err := s.stage(ctx, "extract", func() (err error) {
		content, err = s.extractor.Extract(ctx, text)
		return err
	})
	if err != nil {
		return Extraction{}, s.fail(ctx, intent, err, fallback)
	}

	logging.FromContext(ctx, s.logger).Info("extraction completed",
		"intent", intent,
		"source", source.DisplayName(),
		"chars", source.CharCount,
		"counts", content.Counts(),
	)
	return Extraction{Extracted: content.WithDefaults(), Source: source}, nil
}

// Save validates a content payload and stores it on productID.
func (s *Service) Save(ctx context.Context, productID string, payload []byte) (shopify.SaveResult, error) {
	var content models.ProductContent
	err := s.stage(ctx, "validate_content", func() (err error) {
		content, err = validation.ValidateContent(payload)
		return err
	})
	if err != nil {
		return shopify.SaveResult{}, s.fail(ctx, "save", err, errSaveFailed)
	}

	if s.store == nil {
		return shopify.SaveResult{}, s.fail(ctx, "save", nil, errSaveFailed)
	}

	var result shopify.SaveResult
	err = s.stage(ctx, "persist", func() (err error) {
		result, err = s.store.SaveProductContent(ctx, productID, content)
		return err
	})
	if err != nil {
		return shopify.SaveResult{}, s.fail(ctx, "save", err, errSaveFailed)
	}
	return result, nil
}

// Load reads previously saved content for productID.
func (s *Service) Load(ctx context.Context, productID string) (models.ProductContent, error) {
	if s.store == nil {
		return models.ProductContent{}, s.fail(ctx, "load", nil, errLoadFailed)
	}

	var content models.ProductContent
	err := s.stage(ctx, "load", func() (err error) {
		content, err = s.store.LoadProductContent(ctx, productID)
		return err
	})
	if err != nil {
		return models.ProductContent{}, s.fail(ctx, "load", err, errLoadFailed)
	}
	return content, nil
}

func (s *Service) stage(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	s.metrics.ObserveStage(name, elapsed, err)
	logging.FromContext(ctx, s.logger).Debug("stage finished",
		"stage", name,
		"elapsed", elapsed,
		"ok", err == nil,
	)
	return err
}

// fail normalizes err to a user error and records it. A nil err yields the
// fallback.
func (s *Service) fail(ctx context.Context, intent string, err error, fallback *models.UserError) *models.UserError {
	ue := fallback
	if err != nil {
		ue = models.AsUserError(err, fallback)
	}

	s.metrics.IncUserError(ue.Code)
	logger := logging.FromContext(ctx, s.logger)
	if ue == fallback {
		logger.Error("request failed", "intent", intent, "code", ue.Code, "error", err)
	} else {
		logger.Warn("request rejected", "intent", intent, "code", ue.Code, "message", ue.Message)
	}
	return ue
}

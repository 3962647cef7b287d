package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/productbridge/productbridge/internal/models"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// InferenceLogReader reads persisted model-call records.
type InferenceLogReader interface {
	List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error)
	GetStats(ctx context.Context, startDate, endDate *time.Time) (*models.InferenceLogStats, error)
}

// InferenceLogHandler handles HTTP requests for inference log management
type InferenceLogHandler struct {
	repo   InferenceLogReader
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new handler
func NewInferenceLogHandler(repo InferenceLogReader, logger *slog.Logger) *InferenceLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InferenceLogHandler{
		repo:   repo,
		logger: logger,
	}
}

// ListInferenceLogs handles GET /api/inference-logs
func (h *InferenceLogHandler) ListInferenceLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.InferenceLogQuery{
		RequestID:  q.Get("request_id"),
		Model:      q.Get("model"),
		Operation:  q.Get("operation"),
		SourceKind: q.Get("source_kind"),
		Status:     q.Get("status"),
		Limit:      defaultLogLimit,
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			query.Limit = min(limit, maxLogLimit)
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			query.Offset = offset
		}
	}

	var err error
	if query.StartDate, query.EndDate, err = parseDateRange(r); err != nil {
		writeError(w, err, nil)
		return
	}

	logs, err := h.repo.List(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to list inference logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": models.NewUserError("inference.list_failed", "Failed to list inference logs."),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetInferenceStats handles GET /api/inference-logs/stats
func (h *InferenceLogHandler) GetInferenceStats(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, err := parseDateRange(r)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	stats, err := h.repo.GetStats(r.Context(), startDate, endDate)
	if err != nil {
		h.logger.Error("failed to get inference stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": models.NewUserError("inference.stats_failed", "Failed to get inference stats."),
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// parseDateRange reads RFC 3339 start_date and end_date parameters.
func parseDateRange(r *http.Request) (start, end *time.Time, err error) {
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_date", &start},
		{"end_date", &end},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		parsed, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return nil, nil, badRequest(p.name+" must be an RFC 3339 timestamp.").WithDetail("value", raw)
		}
		*p.dst = &parsed
	}
	return start, end, nil
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/productbridge/productbridge/internal/auth"
)

// RouterDeps are the collaborators wired into the HTTP routes.
type RouterDeps struct {
	Pipeline Pipeline
	// InferenceLogs is nil when no database is configured.
	InferenceLogs InferenceLogReader
	Auth          auth.Config
	// HealthCheck reports dependency health on /healthz; nil means always ok.
	HealthCheck func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// SetupRoutes configures all API routes and returns their patterns.
func SetupRoutes(mux *http.ServeMux, deps RouterDeps) []string {
	var patterns []string
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, h)
		patterns = append(patterns, pattern)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := NewHandler(deps.Pipeline, logger)
	requireSession := auth.Middleware(deps.Auth, logger)
	protect := func(fn http.HandlerFunc) http.Handler {
		return requireSession(fn)
	}

	handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	if deps.Metrics != nil {
		handle("GET /metrics", deps.Metrics)
	}

	handle("POST /api/extract", protect(handler.ExtractText))
	handle("POST /api/extract-pdf", protect(handler.ExtractPDF))
	handle("POST /api/extract-url", protect(handler.ExtractURL))
	handle("POST /api/save", protect(handler.Save))
	handle("GET /api/products/{id}/content", protect(handler.LoadContent))

	if deps.InferenceLogs != nil {
		inferenceLogHandler := NewInferenceLogHandler(deps.InferenceLogs, logger)
		handle("GET /api/inference-logs", protect(inferenceLogHandler.ListInferenceLogs))
		handle("GET /api/inference-logs/stats", protect(inferenceLogHandler.GetInferenceStats))
	}
	return patterns
}

// Routes lists the patterns SetupRoutes registers for deps.
func Routes(deps RouterDeps) []string {
	return SetupRoutes(http.NewServeMux(), deps)
}

// NewRouter builds the full handler: routes, request ids and, when given,
// HTTP metrics instrumentation.
func NewRouter(deps RouterDeps, instrument func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	SetupRoutes(mux, deps)

	var handler http.Handler = mux
	if instrument != nil {
		handler = instrument(handler)
	}
	return RequestID(deps.Logger)(handler)
}

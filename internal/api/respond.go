package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/productbridge/productbridge/internal/models"
)

// codeStatus pins codes whose status differs from their namespace default.
var codeStatus = map[string]int{
	models.CodeURLNotFound:        http.StatusNotFound,
	models.CodeLoadNotFound:       http.StatusNotFound,
	models.CodeURLRateLimited:     http.StatusTooManyRequests,
	models.CodeURLTimeout:         http.StatusGatewayTimeout,
	models.CodeURLBlocked:         http.StatusBadGateway,
	models.CodeURLHTTPError:       http.StatusBadGateway,
	models.CodeURLFetchFailed:     http.StatusBadGateway,
	models.CodeURLScrapeFailed:    http.StatusInternalServerError,
	models.CodeAIExtractionFailed: http.StatusInternalServerError,
	models.CodeSaveFailed:         http.StatusInternalServerError,
	models.CodeSaveShopifyFailed:  http.StatusBadGateway,
	models.CodeSaveShopifyError:   http.StatusBadGateway,
	models.CodeLoadShopifyFailed:  http.StatusBadGateway,
	models.CodeLoadShopifyError:   http.StatusBadGateway,
}

// namespaceStatus is the default status for each code namespace.
var namespaceStatus = map[string]int{
	"text":    http.StatusBadRequest,
	"url":     http.StatusBadRequest,
	"pdf":     http.StatusBadRequest,
	"content": http.StatusBadRequest,
	"request": http.StatusBadRequest,
	"save":    http.StatusBadRequest,
	"load":    http.StatusBadRequest,
	"ai":      http.StatusBadGateway,
	"auth":    http.StatusUnauthorized,
}

// StatusFor maps a user error to an HTTP status.
func StatusFor(ue *models.UserError) int {
	if ue == nil {
		return http.StatusInternalServerError
	}
	if status, ok := codeStatus[ue.Code]; ok {
		return status
	}
	if strings.HasSuffix(ue.Code, ".not_found") {
		return http.StatusNotFound
	}
	if status, ok := namespaceStatus[ue.Namespace()]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// writeError renders err as {"error": UserError}. Errors that are not user
// errors are reported with fallback.
func writeError(w http.ResponseWriter, err error, fallback *models.UserError) {
	ue := models.AsUserError(err, fallback)
	writeJSON(w, StatusFor(ue), map[string]any{"error": ue})
}

func badRequest(message string) *models.UserError {
	return models.NewUserError(models.CodeRequestInvalid, message)
}

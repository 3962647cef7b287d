package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/models"
)

// Store persists inference log entries.
type Store interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger logs inference calls to a Store. A nil *Logger discards calls.
type Logger struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLogger creates a new inference logger
func NewLogger(store Store, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:  store,
		logger: logger,
	}
}

// LogCallParams describes one model call.
type LogCallParams struct {
	Provider     string
	Model        string
	Operation    string
	SourceKind   string
	Attempt      int
	TokensUsed   int
	InputTokens  *int
	OutputTokens *int
	CostUSD      *float64
	LatencyMs    *int
	Status       string // "success" or "error"
	ErrorMessage *string
	Metadata     map[string]interface{}
}

// LogCall logs an inference call to the store
func (l *Logger) LogCall(ctx context.Context, params LogCallParams) {
	if l == nil || l.store == nil {
		return
	}

	var metadataJSON string
	if params.Metadata != nil {
		if jsonBytes, err := json.Marshal(params.Metadata); err == nil {
			metadataJSON = string(jsonBytes)
		}
	}

	log := models.InferenceLog{
		RequestID:    logging.RequestID(ctx),
		Provider:     params.Provider,
		Model:        params.Model,
		Operation:    params.Operation,
		SourceKind:   params.SourceKind,
		Attempt:      params.Attempt,
		TokensUsed:   params.TokensUsed,
		InputTokens:  params.InputTokens,
		OutputTokens: params.OutputTokens,
		CostUSD:      params.CostUSD,
		LatencyMs:    params.LatencyMs,
		Status:       params.Status,
		ErrorMessage: params.ErrorMessage,
		Metadata:     metadataJSON,
	}

	// Log asynchronously to avoid blocking the main operation
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Create(bgCtx, log); err != nil {
			l.logger.Error("failed to log inference call", "error", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}

// OpenAICall describes a chat completion attempt.
type OpenAICall struct {
	Model      string
	Operation  string
	SourceKind string
	Attempt    int
	Usage      openai.Usage
	Latency    time.Duration
	Err        error
	Metadata   map[string]interface{}
}

// LogOpenAICall is a helper for OpenAI API calls
func (l *Logger) LogOpenAICall(ctx context.Context, call OpenAICall) {
	if l == nil {
		return
	}

	usage := call.Usage
	params := LogCallParams{
		Provider:     "openai",
		Model:        call.Model,
		Operation:    call.Operation,
		SourceKind:   call.SourceKind,
		Attempt:      call.Attempt,
		TokensUsed:   usage.TotalTokens,
		InputTokens:  &usage.PromptTokens,
		OutputTokens: &usage.CompletionTokens,
		Metadata:     call.Metadata,
	}

	latencyMs := int(call.Latency.Milliseconds())
	params.LatencyMs = &latencyMs

	if call.Err != nil {
		params.Status = "error"
		errMsg := call.Err.Error()
		params.ErrorMessage = &errMsg
	} else {
		params.Status = "success"
	}

	cost := EstimateOpenAICost(call.Model, usage.PromptTokens, usage.CompletionTokens)
	params.CostUSD = &cost

	l.LogCall(ctx, params)
}

// EstimateOpenAICost provides rough cost estimates (update with actual pricing)
func EstimateOpenAICost(model string, inputTokens, outputTokens int) float64 {
	// Rough estimates per 1M tokens
	var inputCostPer1M, outputCostPer1M float64

	switch m := strings.ToLower(model); {
	case strings.HasPrefix(m, "gpt-4o-mini"):
		inputCostPer1M = 0.15
		outputCostPer1M = 0.60
	case strings.HasPrefix(m, "gpt-4o"):
		inputCostPer1M = 2.50
		outputCostPer1M = 10.00
	case strings.HasPrefix(m, "gpt-4.1-nano"):
		inputCostPer1M = 0.10
		outputCostPer1M = 0.40
	case strings.HasPrefix(m, "gpt-4.1-mini"):
		inputCostPer1M = 0.40
		outputCostPer1M = 1.60
	case strings.HasPrefix(m, "gpt-4.1"):
		inputCostPer1M = 2.00
		outputCostPer1M = 8.00
	case strings.HasPrefix(m, "o3-mini"), strings.HasPrefix(m, "o4-mini"):
		inputCostPer1M = 1.10
		outputCostPer1M = 4.40
	default:
		inputCostPer1M = 5.00
		outputCostPer1M = 15.00
	}

	inputCost := (float64(inputTokens) / 1_000_000) * inputCostPer1M
	outputCost := (float64(outputTokens) / 1_000_000) * outputCostPer1M

	return inputCost + outputCost
}

type sourceKindKey struct{}

// WithSourceKind tags ctx with the source kind for inference records.
func WithSourceKind(ctx context.Context, kind models.SourceKind) context.Context {
	return context.WithValue(ctx, sourceKindKey{}, kind)
}

// SourceKind returns the source kind tagged on ctx, or "".
func SourceKind(ctx context.Context) models.SourceKind {
	kind, _ := ctx.Value(sourceKindKey{}).(models.SourceKind)
	return kind
}

// Package extraction turns acquired product text into ProductContent with a
// single chat completion.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/productbridge/productbridge/internal/inference"
	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/retry"
)

// Operation names extraction calls in the inference log.
const Operation = "product_extraction"

// ChatCompleter is the subset of *openai.Client the extractor uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds model settings for extraction.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// Retry overrides the AI policy preset.
	Retry retry.Options
}

// DefaultConfig returns settings tuned for factual extraction.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		Temperature: 0.2,
		MaxTokens:   4000,
		Timeout:     120 * time.Second,
	}
}

// Extractor calls the model and validates its answer.
type Extractor struct {
	client          ChatCompleter
	config          Config
	prompts         *PromptTemplates
	inferenceLogger *inference.Logger
	logger          *slog.Logger
}

// NewExtractor creates an Extractor. inferenceLogger may be nil.
func NewExtractor(client ChatCompleter, config Config, inferenceLogger *inference.Logger, logger *slog.Logger) *Extractor {
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		client:          client,
		config:          config,
		prompts:         NewPromptTemplates(),
		inferenceLogger: inferenceLogger,
		logger:          logger,
	}
}

// Model returns the configured model name.
func (e *Extractor) Model() string {
	return e.config.Model
}

// Extract sends raw to the model and returns the normalized content. Every
// failure is a *models.UserError in the ai.* namespace, except blank input
// which is text.empty.
func (e *Extractor) Extract(ctx context.Context, raw string) (content models.ProductContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panicked: %v", r)
		}
		if err != nil {
			err = models.AsUserError(err, models.NewUserError(models.CodeAIExtractionFailed, "Product extraction failed unexpectedly.").
				WithSuggestion("Try again. If the problem persists, try a different source."))
		}
	}()

	text := strings.TrimSpace(raw)
	if text == "" {
		return models.ProductContent{}, models.NewUserError(models.CodeTextEmpty, "No product text was provided.").
			WithSuggestion("Paste the manufacturer's product description or specification sheet.")
	}

	logger := logging.FromContext(ctx, e.logger)
	request := e.buildRequest(text)

	opts := e.config.Retry
	opts.AttemptTimeout = e.config.Timeout
	observe := opts.OnRetry
	opts.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("model call failed, retrying",
			"model", e.config.Model,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if observe != nil {
			observe(attempt, err, delay)
		}
	}

	attempt := 0
	result := retry.ExecutePolicy(ctx, retry.PolicyAI, opts, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		attempt++
		start := time.Now()
		resp, err := e.client.CreateChatCompletion(ctx, request)
		e.recordCall(ctx, attempt, resp.Usage, time.Since(start), err, utf8.RuneCountInString(text))
		if err != nil {
			return resp, wrapOpenAIError(err)
		}
		return resp, nil
	})
	if !result.Success {
		logger.Error("model call failed",
			"model", e.config.Model,
			"attempts", result.Attempts,
			"elapsed", result.Elapsed,
			"error", result.Err,
		)
		return models.ProductContent{}, retryFailed(result.Err)
	}

	resp := result.Value
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		var finishReason openai.FinishReason
		if len(resp.Choices) > 0 {
			finishReason = resp.Choices[0].FinishReason
		}
		logger.Error("model returned no content",
			"model", e.config.Model,
			"response_id", resp.ID,
			"finish_reason", finishReason,
		)
		return models.ProductContent{}, models.NewUserError(models.CodeAINoResponse, "The AI service returned an empty response.").
			WithSuggestion("Try again in a moment.")
	}

	obj, err := models.DecodeContentObject([]byte(extractJSON(resp.Choices[0].Message.Content)))
	if err != nil {
		logger.Error("model returned invalid JSON",
			"model", e.config.Model,
			"response_id", resp.ID,
			"error", err,
		)
		return models.ProductContent{}, models.NewUserError(models.CodeAIInvalidJSON, "The AI service returned a response that could not be read.").
			WithSuggestion("Try again. Shorter or cleaner source text often helps.")
	}

	content, err = models.NormalizeContent(obj, false)
	if err != nil {
		return models.ProductContent{}, fmt.Errorf("normalize content: %w", err)
	}

	if content.IsEmpty() {
		return models.ProductContent{}, models.NewUserError(models.CodeAINoContent, "No product information could be extracted.").
			WithSuggestion("Make sure the source contains specifications or a product description.")
	}

	logger.Info("product content extracted",
		"model", e.config.Model,
		"attempts", result.Attempts,
		"elapsed", result.Elapsed,
		"counts", content.Counts(),
	)
	return content, nil
}

func (e *Extractor) buildRequest(text string) openai.ChatCompletionRequest {
	userPrompt := e.prompts.BuildUserPrompt(text)

	// Reasoning models reject response_format, system messages and custom
	// temperatures.
	if isReasoningModel(e.config.Model) {
		return openai.ChatCompletionRequest{
			Model:               e.config.Model,
			MaxCompletionTokens: e.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: e.prompts.SystemPrompt + "\n\n" + userPrompt,
				},
			},
		}
	}

	return openai.ChatCompletionRequest{
		Model:               e.config.Model,
		Temperature:         e.config.Temperature,
		MaxCompletionTokens: e.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: e.prompts.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	}
}

func (e *Extractor) recordCall(ctx context.Context, attempt int, usage openai.Usage, latency time.Duration, err error, chars int) {
	if e.inferenceLogger == nil {
		return
	}
	metadata := map[string]interface{}{
		"chars": chars,
	}
	if status, ok := openAIStatus(err); ok {
		metadata["http_status"] = status
	}
	e.inferenceLogger.LogOpenAICall(ctx, inference.OpenAICall{
		Model:      e.config.Model,
		Operation:  Operation,
		SourceKind: string(inference.SourceKind(ctx)),
		Attempt:    attempt,
		Usage:      usage,
		Latency:    latency,
		Err:        err,
		Metadata:   metadata,
	})
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func openAIStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// wrapOpenAIError attaches the HTTP status so the AI policy can classify it.
func wrapOpenAIError(err error) error {
	if status, ok := openAIStatus(err); ok {
		return retry.NewStatusError(status, err)
	}
	return err
}

func retryFailed(err error) *models.UserError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	ue := models.NewUserError(models.CodeAIRetryFailed, "The AI service request failed: "+msg)

	status, _ := retry.StatusCode(err)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		ue = ue.WithSuggestion("Check that the OpenAI API key is valid and has access to the configured model.")
	case http.StatusTooManyRequests:
		ue = ue.WithSuggestion("The AI service is busy. Wait a few minutes and try again.")
	default:
		ue = ue.WithSuggestion("Try again in a moment.")
	}
	if status != 0 {
		ue = ue.WithDetail("status", status)
	}
	return ue
}

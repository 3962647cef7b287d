package extraction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbridge/productbridge/internal/inference"
	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/retry"
)

const sourceText = "Canon EOS R5. 45MP full-frame CMOS sensor. ISO 100-51200. 8K RAW video."

type scriptedStep struct {
	content  string
	noChoice bool
	err      error
}

type fakeClient struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []openai.ChatCompletionRequest
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}

	if step.err != nil {
		return openai.ChatCompletionResponse{}, step.err
	}
	resp := openai.ChatCompletionResponse{
		ID:    "chatcmpl-test",
		Usage: openai.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}
	if !step.noChoice {
		resp.Choices = []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: step.content},
			FinishReason: openai.FinishReasonStop,
		}}
	}
	return resp, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memoryStore struct {
	mu   sync.Mutex
	logs []models.InferenceLog
}

func (s *memoryStore) Create(_ context.Context, log models.InferenceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func newTestExtractor(client ChatCompleter, model string, il *inference.Logger) *Extractor {
	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Retry = retry.Options{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return NewExtractor(client, cfg, il, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func apiError(status int) error {
	return &openai.APIError{HTTPStatusCode: status, Message: http.StatusText(status)}
}

func userErrorCode(t *testing.T, err error) *models.UserError {
	t.Helper()
	var ue *models.UserError
	require.ErrorAs(t, err, &ue)
	return ue
}

const fullResponse = `{
	"specs": [{"heading": "Sensor", "lines": [{"title": "Resolution", "text": "45MP"}, {"title": "ISO", "text": 100}]}],
	"highlights": ["Good", "", 42, "Also good"],
	"included": [{"title": "Battery LP-E6NH"}, {"link": "https://example.com"}],
	"featured": [{"title": "Video", "value": "8K RAW"}]
}`

func TestExtract_Success(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{content: fullResponse}}}
	content, err := newTestExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), "  "+sourceText+"  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"Good", "Also good"}, content.Highlights)
	require.Len(t, content.Specs, 1)
	assert.Equal(t, []models.SpecLine{{Title: "Resolution", Text: "45MP"}, {Title: "ISO", Text: "100"}}, content.Specs[0].Lines)
	assert.Equal(t, []models.IncludedItem{{Title: "Battery LP-E6NH"}}, content.Included)
	assert.Equal(t, []models.FeaturedSpec{{Title: "Video", Value: "8K RAW"}}, content.Featured)
	assert.Equal(t, 1, client.calls())
}

func TestExtract_RequestShape(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{content: fullResponse}}}
	_, err := newTestExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), sourceText)
	require.NoError(t, err)

	req := client.requests[0]
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, sourceText)
}

func TestExtract_ReasoningModelRequestShape(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{content: "```json\n" + fullResponse + "\n```"}}}
	content, err := newTestExtractor(client, "o3-mini", nil).Extract(context.Background(), sourceText)
	require.NoError(t, err)
	assert.NotEmpty(t, content.Specs)

	req := client.requests[0]
	assert.Nil(t, req.ResponseFormat)
	assert.Zero(t, req.Temperature)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content, "You convert manufacturer product information"))
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		steps          []scriptedStep
		wantCode       string
		wantCalls      int
		wantSuggestion string
	}{
		{
			name:      "blank input",
			input:     "   ",
			steps:     []scriptedStep{{content: fullResponse}},
			wantCode:  models.CodeTextEmpty,
			wantCalls: 0,
		},
		{
			name:      "no choices",
			input:     sourceText,
			steps:     []scriptedStep{{noChoice: true}},
			wantCode:  models.CodeAINoResponse,
			wantCalls: 1,
		},
		{
			name:      "empty content",
			input:     sourceText,
			steps:     []scriptedStep{{content: "  "}},
			wantCode:  models.CodeAINoResponse,
			wantCalls: 1,
		},
		{
			name:      "invalid json",
			input:     sourceText,
			steps:     []scriptedStep{{content: "Here are the specs: sensor 45MP"}},
			wantCode:  models.CodeAIInvalidJSON,
			wantCalls: 1,
		},
		{
			name:      "json array",
			input:     sourceText,
			steps:     []scriptedStep{{content: `[{"heading": "Sensor"}]`}},
			wantCode:  models.CodeAIInvalidJSON,
			wantCalls: 1,
		},
		{
			name:      "all sections empty",
			input:     sourceText,
			steps:     []scriptedStep{{content: `{"specs": [], "highlights": [""], "included": [{}], "featured": "none"}`}},
			wantCode:  models.CodeAINoContent,
			wantCalls: 1,
		},
		{
			name:           "rate limited until budget exhausted",
			input:          sourceText,
			steps:          []scriptedStep{{err: apiError(http.StatusTooManyRequests)}},
			wantCode:       models.CodeAIRetryFailed,
			wantCalls:      3,
			wantSuggestion: "Wait a few minutes",
		},
		{
			name:           "unauthorized is not retried",
			input:          sourceText,
			steps:          []scriptedStep{{err: apiError(http.StatusUnauthorized)}},
			wantCode:       models.CodeAIRetryFailed,
			wantCalls:      1,
			wantSuggestion: "API key",
		},
		{
			name:      "bad request is not retried",
			input:     sourceText,
			steps:     []scriptedStep{{err: apiError(http.StatusBadRequest)}},
			wantCode:  models.CodeAIRetryFailed,
			wantCalls: 1,
		},
		{
			name:      "request error with server status",
			input:     sourceText,
			steps:     []scriptedStep{{err: &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}}},
			wantCode:  models.CodeAIRetryFailed,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{steps: tt.steps}
			_, err := newTestExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), tt.input)

			ue := userErrorCode(t, err)
			assert.Equal(t, tt.wantCode, ue.Code)
			assert.NotEmpty(t, ue.Suggestion)
			if tt.wantSuggestion != "" {
				assert.Contains(t, ue.Suggestion, tt.wantSuggestion)
			}
			assert.Equal(t, tt.wantCalls, client.calls())
		})
	}
}

func TestExtract_RetryFailedCarriesLastError(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{{err: apiError(http.StatusServiceUnavailable)}}}
	_, err := newTestExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), sourceText)

	ue := userErrorCode(t, err)
	assert.Equal(t, models.CodeAIRetryFailed, ue.Code)
	assert.Contains(t, ue.Message, "Service Unavailable")
	assert.Equal(t, http.StatusServiceUnavailable, ue.Details["status"])
}

func TestExtract_RecoversFromTransientFailure(t *testing.T) {
	client := &fakeClient{steps: []scriptedStep{
		{err: apiError(http.StatusInternalServerError)},
		{content: fullResponse},
	}}
	content, err := newTestExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), sourceText)
	require.NoError(t, err)
	assert.NotEmpty(t, content.Featured)
	assert.Equal(t, 2, client.calls())
}

func TestExtract_RecordsEveryAttempt(t *testing.T) {
	store := &memoryStore{}
	il := inference.NewLogger(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client := &fakeClient{steps: []scriptedStep{
		{err: apiError(http.StatusTooManyRequests)},
		{content: fullResponse},
	}}

	ctx := inference.WithSourceKind(context.Background(), models.SourceKindURL)
	_, err := newTestExtractor(client, "gpt-4o-mini", il).Extract(ctx, sourceText)
	require.NoError(t, err)
	il.Wait()

	require.Len(t, store.logs, 2)
	byAttempt := map[int]models.InferenceLog{}
	for _, l := range store.logs {
		byAttempt[l.Attempt] = l
	}
	assert.Equal(t, "error", byAttempt[1].Status)
	assert.Equal(t, "success", byAttempt[2].Status)
	assert.Equal(t, 150, byAttempt[2].TokensUsed)
	assert.Equal(t, "url", byAttempt[2].SourceKind)
	assert.Equal(t, Operation, byAttempt[2].Operation)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{steps: []scriptedStep{{err: context.Canceled}}}
	_, err := newTestExtractor(client, "gpt-4o-mini", nil).Extract(ctx, sourceText)

	ue := userErrorCode(t, err)
	assert.Equal(t, models.CodeAIRetryFailed, ue.Code)
	assert.Equal(t, 1, client.calls())
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"  \n{\"a\":1}\n ":        `{"a":1}`,
		"not json":                "not json",
	}
	for input, want := range tests {
		assert.Equal(t, want, extractJSON(input), "input %q", input)
	}
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("o1-preview"))
	assert.True(t, isReasoningModel("o3-mini"))
	assert.True(t, isReasoningModel("o4-mini"))
	assert.True(t, isReasoningModel("GPT-5"))
	assert.False(t, isReasoningModel("gpt-4o"))
	assert.False(t, isReasoningModel("gpt-4.1-mini"))
}

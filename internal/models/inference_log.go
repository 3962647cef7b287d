package models

import "time"

// InferenceLog records a single language-model call made during extraction.
type InferenceLog struct {
	ID           int       `json:"id"`
	RequestID    string    `json:"request_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"` // 'product_extraction'
	SourceKind   string    `json:"source_kind"`
	Attempt      int       `json:"attempt"`
	TokensUsed   int       `json:"tokens_used"`
	InputTokens  *int      `json:"input_tokens"`
	OutputTokens *int      `json:"output_tokens"`
	CostUSD      *float64  `json:"cost_usd"`
	LatencyMs    *int      `json:"latency_ms"`
	Status       string    `json:"status"` // 'success', 'error'
	ErrorMessage *string   `json:"error_message"`
	Metadata     string    `json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}

// InferenceLogStats represents aggregated statistics.
type InferenceLogStats struct {
	TotalCalls      int     `json:"total_calls"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`

	BySource map[string]InferenceSourceStats `json:"by_source"`
}

// InferenceSourceStats aggregates calls for one source kind (text, pdf, url).
type InferenceSourceStats struct {
	Calls           int     `json:"calls"`
	Tokens          int64   `json:"tokens"`
	CostUSD         float64 `json:"cost_usd"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

// InferenceLogQuery filters inference logs.
type InferenceLogQuery struct {
	RequestID  string
	Model      string
	Operation  string
	SourceKind string
	Status     string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

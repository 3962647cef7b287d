package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/productbridge/productbridge/internal/models"
)

// InferenceLogRepository stores one row per model call made while extracting
// product content.
type InferenceLogRepository struct {
	db *sql.DB
}

// NewInferenceLogRepository creates a new repository
func NewInferenceLogRepository(db *sql.DB) *InferenceLogRepository {
	return &InferenceLogRepository{db: db}
}

const inferenceLogColumns = `id, request_id, provider, model, operation, source_kind, attempt,
		       tokens_used, input_tokens, output_tokens, cost_usd, latency_ms,
		       status, error_message, metadata, created_at`

// Create records a model call.
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	query := `
		INSERT INTO inference_logs (
			request_id, provider, model, operation, source_kind, attempt,
			tokens_used, input_tokens, output_tokens, cost_usd, latency_ms,
			status, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var metadata sql.NullString
	if log.Metadata != "" {
		metadata = sql.NullString{String: log.Metadata, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		log.RequestID,
		log.Provider,
		log.Model,
		log.Operation,
		log.SourceKind,
		log.Attempt,
		log.TokensUsed,
		log.InputTokens,
		log.OutputTokens,
		log.CostUSD,
		log.LatencyMs,
		log.Status,
		log.ErrorMessage,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inference log: %w", err)
	}
	return nil
}

// filter accumulates WHERE conditions with numbered placeholders.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) eq(column string, value string) {
	if value == "" {
		return
	}
	f.add(column+" = ", value)
}

func (f *filter) add(prefix string, value any) {
	f.args = append(f.args, value)
	f.conds = append(f.conds, fmt.Sprintf("%s$%d", prefix, len(f.args)))
}

func (f *filter) dateRange(start, end *time.Time) {
	if start != nil {
		f.add("created_at >= ", *start)
	}
	if end != nil {
		f.add("created_at <= ", *end)
	}
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// List returns matching calls, newest first.
func (r *InferenceLogRepository) List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error) {
	var f filter
	f.eq("request_id", query.RequestID)
	f.eq("model", query.Model)
	f.eq("operation", query.Operation)
	f.eq("source_kind", query.SourceKind)
	f.eq("status", query.Status)
	f.dateRange(query.StartDate, query.EndDate)

	sqlQuery := "SELECT " + inferenceLogColumns + " FROM inference_logs" + f.where() + " ORDER BY created_at DESC"
	args := f.args
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sqlQuery += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if query.Offset > 0 {
		args = append(args, query.Offset)
		sqlQuery += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference logs: %w", err)
	}
	defer rows.Close()

	logs := []models.InferenceLog{}
	for rows.Next() {
		var log models.InferenceLog
		var metadata sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&log.SourceKind,
			&log.Attempt,
			&log.TokensUsed,
			&log.InputTokens,
			&log.OutputTokens,
			&log.CostUSD,
			&log.LatencyMs,
			&log.Status,
			&log.ErrorMessage,
			&metadata,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", err)
		}
		log.Metadata = metadata.String
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inference logs: %w", err)
	}
	return logs, nil
}

// GetStats aggregates calls in the date range, overall and per source kind.
func (r *InferenceLogRepository) GetStats(ctx context.Context, startDate, endDate *time.Time) (*models.InferenceLogStats, error) {
	var f filter
	f.dateRange(startDate, endDate)

	const aggregates = `
			COUNT(*),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)`

	var stats models.InferenceLogStats
	err := r.db.QueryRowContext(ctx, "SELECT"+aggregates+" FROM inference_logs"+f.where(), f.args...).Scan(
		&stats.TotalCalls,
		&stats.TotalTokens,
		&stats.TotalCostUSD,
		&stats.SuccessfulCalls,
		&stats.FailedCalls,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get inference stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT source_kind,"+aggregates+" FROM inference_logs"+f.where()+" GROUP BY source_kind ORDER BY source_kind",
		f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get inference stats by source: %w", err)
	}
	defer rows.Close()

	stats.BySource = map[string]models.InferenceSourceStats{}
	for rows.Next() {
		var kind string
		var s models.InferenceSourceStats
		if err := rows.Scan(&kind, &s.Calls, &s.Tokens, &s.CostUSD, &s.SuccessfulCalls, &s.FailedCalls, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("failed to scan inference stats by source: %w", err)
		}
		stats.BySource[kind] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inference stats by source: %w", err)
	}

	return &stats, nil
}

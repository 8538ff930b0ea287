// Package tracker records every generation call in the llm_usage ledger.
package tracker

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
)

// ModelUsage is one generation call
type ModelUsage struct {
	ID                int64      `json:"id"`
	OperationType     string     `json:"operation_type"`
	EntityType        string     `json:"entity_type,omitempty"`
	EntityID          string     `json:"entity_id,omitempty"`
	Provider          string     `json:"provider"`
	ModelName         string     `json:"model_name"`
	PromptBytes       int        `json:"prompt_bytes"`
	ResponseBytes     int        `json:"response_bytes"`
	RequestTimestamp  time.Time  `json:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty"`
	Success           bool       `json:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
}

// UsageStats is aggregated usage since a point in time
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	PromptBytes        int64   `json:"prompt_bytes"`
	ResponseBytes      int64   `json:"response_bytes"`
	UniqueModels       int     `json:"unique_models"`
}

// ModelBreakdown is usage for one provider/model pair
type ModelBreakdown struct {
	Provider          string   `json:"provider"`
	ModelName         string   `json:"model_name"`
	RequestCount      int      `json:"request_count"`
	FailedCount       int      `json:"failed_count"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// UsageTracker writes and aggregates llm_usage rows
type UsageTracker struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewUsageTracker creates a tracker over db
func NewUsageTracker(db *sql.DB, logger *zap.SugaredLogger) *UsageTracker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UsageTracker{db: db, logger: logger.Named("tracker")}
}

// TrackUsage records one call
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *ModelUsage) error {
	res, err := t.db.ExecContext(ctx, `
		INSERT INTO llm_usage (
			operation_type, entity_type, entity_id, provider, model_name,
			prompt_bytes, response_bytes, request_timestamp, response_timestamp,
			success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usage.OperationType, nullString(usage.EntityType), nullString(usage.EntityID),
		usage.Provider, usage.ModelName,
		usage.PromptBytes, usage.ResponseBytes,
		usage.RequestTimestamp.UTC(), utcPtr(usage.ResponseTimestamp),
		usage.Success, usage.ErrorMessage,
	)
	if err != nil {
		return errors.Wrap(err, "failed to record llm usage")
	}
	if id, err := res.LastInsertId(); err == nil {
		usage.ID = id
	}
	return nil
}

// GetUsageStats aggregates calls made at or after since
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	var stats UsageStats
	err := t.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COALESCE(SUM(prompt_bytes), 0),
			COALESCE(SUM(response_bytes), 0),
			COUNT(DISTINCT model_name)
		FROM llm_usage
		WHERE request_timestamp >= ?`, since.UTC()).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.PromptBytes, &stats.ResponseBytes, &stats.UniqueModels,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query llm usage stats")
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// GetModelBreakdown groups calls made at or after since by provider and model
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT
			provider,
			model_name,
			COUNT(*),
			COUNT(CASE WHEN success = 0 THEN 1 END),
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END)
		FROM llm_usage
		WHERE request_timestamp >= ?
		GROUP BY provider, model_name
		ORDER BY COUNT(*) DESC, provider, model_name`, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query llm usage breakdown")
	}
	defer rows.Close()

	var out []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		var avg sql.NullFloat64
		if err := rows.Scan(&mb.Provider, &mb.ModelName, &mb.RequestCount, &mb.FailedCount, &avg); err != nil {
			return nil, errors.Wrap(err, "failed to scan llm usage breakdown")
		}
		if avg.Valid {
			mb.AvgResponseTimeMs = &avg.Float64
		}
		out = append(out, mb)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate llm usage breakdown")
}

// Recent returns the latest calls, newest first
func (t *UsageTracker) Recent(ctx context.Context, limit int) ([]ModelUsage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, operation_type, COALESCE(entity_type, ''), COALESCE(entity_id, ''),
			provider, model_name, prompt_bytes, response_bytes,
			request_timestamp, response_timestamp, success, error_message
		FROM llm_usage
		ORDER BY request_timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query recent llm usage")
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		var resp sql.NullTime
		var msg sql.NullString
		if err := rows.Scan(&u.ID, &u.OperationType, &u.EntityType, &u.EntityID,
			&u.Provider, &u.ModelName, &u.PromptBytes, &u.ResponseBytes,
			&u.RequestTimestamp, &resp, &u.Success, &msg); err != nil {
			return nil, errors.Wrap(err, "failed to scan llm usage")
		}
		if resp.Valid {
			u.ResponseTimestamp = &resp.Time
		}
		if msg.Valid {
			u.ErrorMessage = &msg.String
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate llm usage")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package ratelimit

import "time"

// Status of a throttling episode.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusResolved Status = "RESOLVED"
)

// Event is one recorded throttling episode. TickerID is nil for
// batch-wide blocks that could not be attributed to a symbol.
type Event struct {
	ID              int64      `db:"id"`
	TickerID        *int64     `db:"ticker_id"`
	Symbol          string     `db:"symbol"`
	BlockedAt       time.Time  `db:"blocked_at"`
	DurationSeconds *int64     `db:"duration_seconds"`
	RetryCount      int        `db:"retry_count"`
	ResolvedAt      *time.Time `db:"resolved_at"`
	Status          Status     `db:"status"`
	CreatedAt       time.Time  `db:"created_at"`
}

// Statistics aggregates a symbol's throttling history.
type Statistics struct {
	Symbol             string     `db:"symbol"`
	TotalBlocks        int        `db:"total_blocks"`
	ActiveCount        int        `db:"active_count"`
	ResolvedCount      int        `db:"resolved_count"`
	AvgDurationSeconds float64    `db:"avg_duration_seconds"`
	MaxDurationSeconds int64      `db:"max_duration_seconds"`
	LastBlockedAt      *time.Time `db:"last_blocked_at"`
	PeakRetryCount     int        `db:"peak_retry_count"`
}

package ratelimit

import (
	"context"
	"time"
)

// Repository persists throttling episodes.
type Repository interface {
	// Insert stores a new ACTIVE event for the symbol (ticker id resolved
	// from the master; nil when the symbol is unknown or batch-wide) and
	// returns the event id.
	Insert(ctx context.Context, symbol string, blockedAt time.Time, retryCount int) (int64, error)

	// Resolve closes an ACTIVE event: sets resolved_at, the floored
	// duration in seconds, and status RESOLVED. A no-op for events
	// already resolved.
	Resolve(ctx context.Context, id int64, resolvedAt time.Time) error

	// Active lists ACTIVE events, optionally filtered by symbol
	// (empty string means all symbols).
	Active(ctx context.Context, symbol string) ([]Event, error)

	// Stats aggregates a symbol's throttling history.
	Stats(ctx context.Context, symbol string) (*Statistics, error)

	// StatsAll aggregates every symbol that has at least one event.
	StatsAll(ctx context.Context) ([]Statistics, error)
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ratelimit"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

// Compile-time check
var _ ratelimit.Repository = (*RateLimitRepository)(nil)

// RateLimitRepository implements ratelimit.Repository using sqlx
type RateLimitRepository struct {
	db *sqlx.DB
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(db *sqlx.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Insert stores a new ACTIVE event. The ticker id is resolved from the
// master in the same statement; an unknown symbol leaves it NULL.
func (r *RateLimitRepository) Insert(ctx context.Context, symbol string, blockedAt time.Time, retryCount int) (int64, error) {
	query := `
		INSERT INTO rate_limit_events (
			ticker_id, blocked_at, retry_count, status, created_at
		) VALUES (
			(SELECT id FROM tickers WHERE symbol = $1), $2, $3, $4, $5
		)
		RETURNING id`

	var id int64
	err := r.db.GetContext(ctx, &id, query,
		symbol, blockedAt, retryCount, ratelimit.StatusActive, time.Now().UTC(),
	)
	if err != nil {
		return 0, errors.Wrapf(err, "insert rate limit event for %s", symbol)
	}
	return id, nil
}

// Resolve closes an ACTIVE event, computing the floored duration in SQL.
// Closing an already-resolved event is a no-op.
func (r *RateLimitRepository) Resolve(ctx context.Context, id int64, resolvedAt time.Time) error {
	query := `
		UPDATE rate_limit_events
		SET resolved_at = $2,
		    duration_seconds = FLOOR(EXTRACT(EPOCH FROM ($2 - blocked_at))),
		    status = $3
		WHERE id = $1 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, id, resolvedAt, ratelimit.StatusResolved, ratelimit.StatusActive)
	if err != nil {
		return errors.Wrapf(err, "resolve rate limit event %d", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Idempotent on already-resolved events; only a missing row is an error.
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM rate_limit_events WHERE id = $1)`, id); err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(errors.ErrNotFound, "rate limit event %d", id)
		}
	}
	return nil
}

// Active lists ACTIVE events, newest first, optionally filtered by symbol.
func (r *RateLimitRepository) Active(ctx context.Context, symbol string) ([]ratelimit.Event, error) {
	query := `
		SELECT e.id, e.ticker_id, COALESCE(t.symbol, '') AS symbol,
		       e.blocked_at, e.duration_seconds, e.retry_count,
		       e.resolved_at, e.status, e.created_at
		FROM rate_limit_events e
		LEFT JOIN tickers t ON t.id = e.ticker_id
		WHERE e.status = $1`

	args := []interface{}{ratelimit.StatusActive}
	if symbol != "" {
		query += ` AND t.symbol = $2`
		args = append(args, symbol)
	}
	query += ` ORDER BY e.blocked_at DESC`

	var events []ratelimit.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, errors.Wrap(err, "list active rate limit events")
	}
	return events, nil
}

const statsColumns = `
	COUNT(*) AS total_blocks,
	COUNT(*) FILTER (WHERE e.status = 'ACTIVE') AS active_count,
	COUNT(*) FILTER (WHERE e.status = 'RESOLVED') AS resolved_count,
	COALESCE(AVG(e.duration_seconds) FILTER (WHERE e.status = 'RESOLVED'), 0) AS avg_duration_seconds,
	COALESCE(MAX(e.duration_seconds), 0) AS max_duration_seconds,
	MAX(e.blocked_at) AS last_blocked_at,
	COALESCE(MAX(e.retry_count), 0) AS peak_retry_count`

// Stats aggregates one symbol's throttling history. A symbol with no
// events yields zero-valued statistics.
func (r *RateLimitRepository) Stats(ctx context.Context, symbol string) (*ratelimit.Statistics, error) {
	query := `
		SELECT t.symbol AS symbol,` + statsColumns + `
		FROM rate_limit_events e
		JOIN tickers t ON t.id = e.ticker_id
		WHERE t.symbol = $1
		GROUP BY t.symbol`

	var stats ratelimit.Statistics
	err := r.db.GetContext(ctx, &stats, query, symbol)
	if err == sql.ErrNoRows {
		return &ratelimit.Statistics{Symbol: symbol}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "rate limit stats for %s", symbol)
	}
	return &stats, nil
}

// StatsAll aggregates every symbol with at least one recorded event.
func (r *RateLimitRepository) StatsAll(ctx context.Context) ([]ratelimit.Statistics, error) {
	query := `
		SELECT t.symbol AS symbol,` + statsColumns + `
		FROM rate_limit_events e
		JOIN tickers t ON t.id = e.ticker_id
		GROUP BY t.symbol
		ORDER BY t.symbol`

	var stats []ratelimit.Statistics
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, errors.Wrap(err, "rate limit stats for all symbols")
	}
	return stats, nil
}

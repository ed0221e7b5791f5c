package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ratelimit"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

func seedTicker(t *testing.T, symbol string) {
	t.Helper()
	repo := NewTickerRepository(testDB)
	require.NoError(t, repo.SaveSnapshot(context.Background(), testSnapshot(symbol)))
}

func TestRateLimit_InsertAndResolve(t *testing.T) {
	db := requireDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()
	seedTicker(t, symbol)

	blocked := time.Date(2025, 3, 11, 19, 0, 0, 0, time.UTC)
	id, err := repo.Insert(ctx, symbol, blocked, 1)
	require.NoError(t, err)

	active, err := repo.Active(ctx, symbol)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].ID)
	assert.Equal(t, symbol, active[0].Symbol)
	assert.Equal(t, ratelimit.StatusActive, active[0].Status)
	assert.Nil(t, active[0].ResolvedAt)

	// Resolve 95.8 seconds later: duration floors to 95.
	require.NoError(t, repo.Resolve(ctx, id, blocked.Add(95*time.Second+800*time.Millisecond)))

	active, err = repo.Active(ctx, symbol)
	require.NoError(t, err)
	assert.Empty(t, active)

	stats, err := repo.Stats(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ResolvedCount)
	assert.Equal(t, int64(95), stats.MaxDurationSeconds)
}

func TestRateLimit_ResolveIdempotent(t *testing.T) {
	db := requireDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()
	seedTicker(t, symbol)

	blocked := time.Now().UTC().Truncate(time.Second)
	id, err := repo.Insert(ctx, symbol, blocked, 1)
	require.NoError(t, err)

	require.NoError(t, repo.Resolve(ctx, id, blocked.Add(10*time.Second)))
	// Second resolve with a later timestamp must not overwrite.
	require.NoError(t, repo.Resolve(ctx, id, blocked.Add(99*time.Second)))

	stats, err := repo.Stats(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.MaxDurationSeconds)
}

func TestRateLimit_ResolveMissingEvent(t *testing.T) {
	db := requireDB(t)
	repo := NewRateLimitRepository(db)

	err := repo.Resolve(context.Background(), -1, time.Now().UTC())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRateLimit_UnknownSymbolInsertsBatchWideEvent(t *testing.T) {
	db := requireDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()

	id, err := repo.Insert(ctx, "NEVER-SEEN.SA", time.Now().UTC(), 2)
	require.NoError(t, err)
	assert.Positive(t, id)

	var tickerID *int64
	require.NoError(t, testDB.Get(&tickerID,
		`SELECT ticker_id FROM rate_limit_events WHERE id = $1`, id))
	assert.Nil(t, tickerID, "unknown symbol leaves ticker_id NULL")
}

func TestRateLimit_Stats(t *testing.T) {
	db := requireDB(t)
	repo := NewRateLimitRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()
	seedTicker(t, symbol)

	blocked := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	id1, err := repo.Insert(ctx, symbol, blocked, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Resolve(ctx, id1, blocked.Add(4*time.Second)))

	id2, err := repo.Insert(ctx, symbol, blocked.Add(time.Minute), 3)
	require.NoError(t, err)
	require.NoError(t, repo.Resolve(ctx, id2, blocked.Add(time.Minute+8*time.Second)))

	_, err = repo.Insert(ctx, symbol, blocked.Add(2*time.Minute), 5)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, symbol, stats.Symbol)
	assert.Equal(t, 3, stats.TotalBlocks)
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Equal(t, 2, stats.ResolvedCount)
	assert.InDelta(t, 6.0, stats.AvgDurationSeconds, 0.001)
	assert.Equal(t, int64(8), stats.MaxDurationSeconds)
	assert.Equal(t, 5, stats.PeakRetryCount)
	require.NotNil(t, stats.LastBlockedAt)
}

func TestRateLimit_StatsEmptySymbol(t *testing.T) {
	db := requireDB(t)
	repo := NewRateLimitRepository(db)

	stats, err := repo.Stats(context.Background(), "QUIET.SA")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalBlocks)
	assert.Equal(t, "QUIET.SA", stats.Symbol)
}

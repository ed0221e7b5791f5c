package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

func testSnapshot(symbol string) *ticker.Snapshot {
	volume := int64(1_000_000)
	pe := 4.2
	return &ticker.Snapshot{
		Symbol:     symbol,
		AssetType:  ticker.AssetStock,
		Currency:   "BRL",
		LastPrice:  decimal.RequireFromString("37.1234"),
		Volume:     &volume,
		ObservedAt: time.Date(2025, 3, 11, 19, 31, 0, 0, time.UTC),
		PERatio:    &pe,
		History: []ticker.Bar{
			{
				Date:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
				Open:  decimal.RequireFromString("36.10"),
				High:  decimal.RequireFromString("37.50"),
				Low:   decimal.RequireFromString("36.00"),
				Close: decimal.RequireFromString("37.12"),
			},
		},
	}
}

func countRows(t *testing.T, table string, tickerID int64) int {
	t.Helper()
	var n int
	err := testDB.Get(&n, `SELECT COUNT(*) FROM `+table+` WHERE ticker_id = $1`, tickerID)
	require.NoError(t, err)
	return n
}

func TestSaveSnapshot_CreatesAllRows(t *testing.T) {
	db := requireDB(t)
	repo := NewTickerRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()

	require.NoError(t, repo.SaveSnapshot(ctx, testSnapshot(symbol)))

	master, err := repo.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, symbol, master.Symbol)
	assert.Equal(t, ticker.AssetStock, master.AssetType)

	assert.Equal(t, 1, countRows(t, "ticker_prices", master.ID))
	assert.Equal(t, 1, countRows(t, "ticker_fundamentals", master.ID))
	assert.Equal(t, 1, countRows(t, "ticker_history", master.ID))
}

func TestSaveSnapshot_RerunAppendsButSkipsSeenBars(t *testing.T) {
	db := requireDB(t)
	repo := NewTickerRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()
	snap := testSnapshot(symbol)

	require.NoError(t, repo.SaveSnapshot(ctx, snap))
	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	master, err := repo.GetBySymbol(ctx, symbol)
	require.NoError(t, err)

	// Prices and fundamentals are append-only; history bars are unique
	// per (ticker, date).
	assert.Equal(t, 2, countRows(t, "ticker_prices", master.ID))
	assert.Equal(t, 2, countRows(t, "ticker_fundamentals", master.ID))
	assert.Equal(t, 1, countRows(t, "ticker_history", master.ID))
}

func TestSaveSnapshot_NoFundamentalsRow(t *testing.T) {
	db := requireDB(t)
	repo := NewTickerRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()

	snap := testSnapshot(symbol)
	snap.PERatio = nil

	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	master, err := repo.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, "ticker_fundamentals", master.ID))
}

func TestSaveSnapshot_NullVolume(t *testing.T) {
	db := requireDB(t)
	repo := NewTickerRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()

	snap := testSnapshot(symbol)
	snap.Volume = nil

	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	sample, err := repo.LatestPrice(ctx, symbol)
	require.NoError(t, err)
	assert.Nil(t, sample.Volume, "missing volume stored as NULL")
}

func TestLatestPrice_PicksMostRecent(t *testing.T) {
	db := requireDB(t)
	repo := NewTickerRepository(db)
	ctx := context.Background()
	symbol := uniqueSymbol()

	first := testSnapshot(symbol)
	require.NoError(t, repo.SaveSnapshot(ctx, first))

	second := testSnapshot(symbol)
	second.LastPrice = decimal.RequireFromString("40.0001")
	second.ObservedAt = first.ObservedAt.Add(time.Hour)
	require.NoError(t, repo.SaveSnapshot(ctx, second))

	sample, err := repo.LatestPrice(ctx, symbol)
	require.NoError(t, err)
	assert.True(t, sample.Price.Equal(decimal.RequireFromString("40.0001")),
		"got %s", sample.Price)
}

func TestGetBySymbol_NotFound(t *testing.T) {
	db := requireDB(t)
	repo := NewTickerRepository(db)

	_, err := repo.GetBySymbol(context.Background(), "MISSING.SA")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

// Compile-time check
var _ ticker.Repository = (*TickerRepository)(nil)

// TickerRepository implements ticker.Repository using sqlx
type TickerRepository struct {
	db *sqlx.DB
}

// NewTickerRepository creates a new ticker repository
func NewTickerRepository(db *sqlx.DB) *TickerRepository {
	return &TickerRepository{db: db}
}

// SaveSnapshot commits one snapshot in a single transaction. A failure in
// any step rolls the whole snapshot back; history bars already present for
// a date are silently skipped.
func (r *TickerRepository) SaveSnapshot(ctx context.Context, snap *ticker.Snapshot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin snapshot transaction")
	}
	defer tx.Rollback()

	tickerID, err := upsertTicker(ctx, tx, snap)
	if err != nil {
		return err
	}

	if err := insertPriceSample(ctx, tx, tickerID, snap); err != nil {
		return err
	}

	if snap.HasFundamentals() {
		if err := insertFundamentals(ctx, tx, tickerID, snap); err != nil {
			return err
		}
	}

	if err := insertHistoryBars(ctx, tx, tickerID, snap.History); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit snapshot for %s", snap.Symbol)
	}
	return nil
}

// upsertTicker inserts the master row if the symbol is new and returns
// the surrogate id either way.
func upsertTicker(ctx context.Context, tx DBTX, snap *ticker.Snapshot) (int64, error) {
	query := `
		INSERT INTO tickers (symbol, asset_type, currency, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO NOTHING`

	if _, err := tx.ExecContext(ctx, query,
		snap.Symbol, snap.AssetType, snap.Currency, time.Now().UTC(),
	); err != nil {
		return 0, errors.Wrapf(err, "upsert ticker %s", snap.Symbol)
	}

	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM tickers WHERE symbol = $1`, snap.Symbol); err != nil {
		return 0, errors.Wrapf(err, "fetch ticker id for %s", snap.Symbol)
	}
	return id, nil
}

func insertPriceSample(ctx context.Context, tx DBTX, tickerID int64, snap *ticker.Snapshot) error {
	query := `
		INSERT INTO ticker_prices (ticker_id, price, volume, observed_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.ExecContext(ctx, query,
		tickerID, snap.LastPrice, snap.Volume, snap.ObservedAt, time.Now().UTC(),
	)
	return errors.Wrapf(err, "insert price sample for %s", snap.Symbol)
}

func insertFundamentals(ctx context.Context, tx DBTX, tickerID int64, snap *ticker.Snapshot) error {
	query := `
		INSERT INTO ticker_fundamentals (
			ticker_id, pe_ratio, eps, dividend_yield, market_cap, collected_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(ctx, query,
		tickerID, snap.PERatio, snap.EPS, snap.DividendYield, snap.MarketCap,
		snap.ObservedAt, time.Now().UTC(),
	)
	return errors.Wrapf(err, "insert fundamentals for %s", snap.Symbol)
}

// insertHistoryBars appends unseen daily bars; re-seen (ticker_id, date)
// pairs are a no-op.
func insertHistoryBars(ctx context.Context, tx DBTX, tickerID int64, bars []ticker.Bar) error {
	query := `
		INSERT INTO ticker_history (
			ticker_id, date, open, high, low, close, volume, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker_id, date) DO NOTHING`

	now := time.Now().UTC()
	for _, bar := range bars {
		if _, err := tx.ExecContext(ctx, query,
			tickerID, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, now,
		); err != nil {
			return errors.Wrapf(err, "insert history bar %s", bar.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// GetBySymbol retrieves the master record for a symbol
func (r *TickerRepository) GetBySymbol(ctx context.Context, symbol string) (*ticker.Ticker, error) {
	var t ticker.Ticker

	query := `SELECT * FROM tickers WHERE symbol = $1`

	err := r.db.GetContext(ctx, &t, query, symbol)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "ticker %s", symbol)
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// LatestPrice returns the most recent price sample for a symbol.
// This is the read-time dedupe view for append-only price rows.
func (r *TickerRepository) LatestPrice(ctx context.Context, symbol string) (*ticker.PriceSample, error) {
	var sample ticker.PriceSample

	query := `
		SELECT p.* FROM ticker_prices p
		JOIN tickers t ON t.id = p.ticker_id
		WHERE t.symbol = $1
		ORDER BY p.observed_at DESC, p.id DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &sample, query, symbol)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "no price for %s", symbol)
	}
	if err != nil {
		return nil, err
	}

	return &sample, nil
}

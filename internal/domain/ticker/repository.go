package ticker

import "context"

// Repository persists collected ticker data.
type Repository interface {
	// SaveSnapshot commits one snapshot in a single transaction:
	// upsert the master row, append the price sample, append fundamentals
	// when present, and insert unseen history bars. A failure rolls the
	// whole snapshot back.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// GetBySymbol looks up the master record for a symbol.
	GetBySymbol(ctx context.Context, symbol string) (*Ticker, error)

	// LatestPrice returns the most recent price sample for a symbol.
	LatestPrice(ctx context.Context, symbol string) (*PriceSample, error)
}

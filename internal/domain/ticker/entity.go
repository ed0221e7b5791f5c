package ticker

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType classifies a monitored instrument
type AssetType string

const (
	AssetStock  AssetType = "STOCK"
	AssetETF    AssetType = "ETF"
	AssetFund   AssetType = "FUND"
	AssetCrypto AssetType = "CRYPTO"
)

// NormalizeAssetType maps provider quote types onto the stored enum.
// Unknown provider types default to STOCK.
func NormalizeAssetType(providerType string) AssetType {
	switch providerType {
	case "EQUITY", "STOCK":
		return AssetStock
	case "ETF":
		return AssetETF
	case "MUTUALFUND", "FUND":
		return AssetFund
	case "CRYPTOCURRENCY", "CRYPTO":
		return AssetCrypto
	default:
		return AssetStock
	}
}

// Ticker is the symbol master record
type Ticker struct {
	ID        int64     `db:"id"`
	Symbol    string    `db:"symbol"`
	AssetType AssetType `db:"asset_type"`
	Currency  string    `db:"currency"`
	CreatedAt time.Time `db:"created_at"`
}

// PriceSample is one observed last price. Append-only, never mutated.
type PriceSample struct {
	ID         int64           `db:"id"`
	TickerID   int64           `db:"ticker_id"`
	Price      decimal.Decimal `db:"price"`
	Volume     *int64          `db:"volume"`
	ObservedAt time.Time       `db:"observed_at"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Fundamentals is one collected fundamentals row. Append-only.
type Fundamentals struct {
	ID            int64     `db:"id"`
	TickerID      int64     `db:"ticker_id"`
	PERatio       *float64  `db:"pe_ratio"`
	EPS           *float64  `db:"eps"`
	DividendYield *float64  `db:"dividend_yield"`
	MarketCap     *int64    `db:"market_cap"`
	CollectedAt   time.Time `db:"collected_at"`
	CreatedAt     time.Time `db:"created_at"`
}

// HistoryBar is one daily OHLCV bar, unique per (ticker_id, date).
type HistoryBar struct {
	ID        int64           `db:"id"`
	TickerID  int64           `db:"ticker_id"`
	Date      time.Time       `db:"date"`
	Open      decimal.Decimal `db:"open"`
	High      decimal.Decimal `db:"high"`
	Low       decimal.Decimal `db:"low"`
	Close     decimal.Decimal `db:"close"`
	Volume    *int64          `db:"volume"`
	CreatedAt time.Time       `db:"created_at"`
}

// Bar is one daily OHLCV bar as it arrives from the quote source,
// before it is attached to a ticker id.
type Bar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume *int64
}

// Snapshot carries everything the quote source returned for one symbol:
// last price, fundamentals when present, and the OHLCV history.
type Snapshot struct {
	Symbol     string
	AssetType  AssetType
	Currency   string
	LastPrice  decimal.Decimal
	Volume     *int64
	ObservedAt time.Time

	PERatio       *float64
	EPS           *float64
	DividendYield *float64
	MarketCap     *int64

	History []Bar
}

// HasFundamentals reports whether any fundamental field was returned.
func (s *Snapshot) HasFundamentals() bool {
	return s.PERatio != nil || s.EPS != nil || s.DividendYield != nil || s.MarketCap != nil
}

// TruncatePrice cuts a price to the 4-decimal storage precision.
// Values beyond provider precision are truncated, not rounded.
func TruncatePrice(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(4)
}

package ticker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeAssetType(t *testing.T) {
	tests := []struct {
		provider string
		want     AssetType
	}{
		{"EQUITY", AssetStock},
		{"STOCK", AssetStock},
		{"ETF", AssetETF},
		{"MUTUALFUND", AssetFund},
		{"FUND", AssetFund},
		{"CRYPTOCURRENCY", AssetCrypto},
		{"CRYPTO", AssetCrypto},
		{"", AssetStock},
		{"SOMETHING_ELSE", AssetStock},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAssetType(tt.provider))
		})
	}
}

func TestTruncatePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"37.123456", "37.1234"}, // truncated, not rounded
		{"37.99999", "37.9999"},
		{"37.1", "37.1"},
		{"37", "37"},
		{"-1.23456", "-1.2345"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := decimal.RequireFromString(tt.in)
			assert.Equal(t, tt.want, TruncatePrice(d).String())
		})
	}
}

func TestSnapshot_HasFundamentals(t *testing.T) {
	assert.False(t, (&Snapshot{}).HasFundamentals())

	pe := 12.5
	assert.True(t, (&Snapshot{PERatio: &pe}).HasFundamentals())

	cap := int64(1_000_000)
	assert.True(t, (&Snapshot{MarketCap: &cap}).HasFundamentals())
}

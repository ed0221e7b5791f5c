package persistence

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

type fakeRepo struct {
	saved   []string
	failing map[string]bool
}

func (f *fakeRepo) SaveSnapshot(ctx context.Context, snap *ticker.Snapshot) error {
	if f.failing[snap.Symbol] {
		return errors.Wrap(errors.ErrInternal, "commit failed")
	}
	f.saved = append(f.saved, snap.Symbol)
	return nil
}

func (f *fakeRepo) GetBySymbol(ctx context.Context, symbol string) (*ticker.Ticker, error) {
	return nil, errors.ErrNotFound
}

func (f *fakeRepo) LatestPrice(ctx context.Context, symbol string) (*ticker.PriceSample, error) {
	return nil, errors.ErrNotFound
}

func snapshots(symbols ...string) []*ticker.Snapshot {
	out := make([]*ticker.Snapshot, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, &ticker.Snapshot{
			Symbol:    s,
			LastPrice: decimal.RequireFromString("1.0"),
		})
	}
	return out
}

func TestSaveAll_AllSucceed(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)

	saved, failed := svc.SaveAll(context.Background(), snapshots("A", "B", "C"))

	assert.Equal(t, 3, saved)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"A", "B", "C"}, repo.saved)
}

func TestSaveAll_OneFailureDoesNotStopOthers(t *testing.T) {
	repo := &fakeRepo{failing: map[string]bool{"B": true}}
	svc := NewService(repo)

	saved, failed := svc.SaveAll(context.Background(), snapshots("A", "B", "C"))

	assert.Equal(t, 2, saved)
	assert.Equal(t, []string{"B"}, failed)
	assert.Equal(t, []string{"A", "C"}, repo.saved)
}

func TestSaveAll_Empty(t *testing.T) {
	svc := NewService(&fakeRepo{})

	saved, failed := svc.SaveAll(context.Background(), nil)

	assert.Zero(t, saved)
	assert.Empty(t, failed)
}

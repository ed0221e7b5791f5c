package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/rpsouza441/ticker-monitor/internal/domain/ratelimit"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

// in-memory repository
type fakeRepo struct {
	nextID int64
	events map[int64]*domain.Event
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{events: make(map[int64]*domain.Event)}
}

func (f *fakeRepo) Insert(ctx context.Context, symbol string, blockedAt time.Time, retryCount int) (int64, error) {
	f.nextID++
	f.events[f.nextID] = &domain.Event{
		ID:         f.nextID,
		Symbol:     symbol,
		BlockedAt:  blockedAt,
		RetryCount: retryCount,
		Status:     domain.StatusActive,
	}
	return f.nextID, nil
}

func (f *fakeRepo) Resolve(ctx context.Context, id int64, resolvedAt time.Time) error {
	e, ok := f.events[id]
	if !ok {
		return errors.ErrNotFound
	}
	if e.Status == domain.StatusResolved {
		return nil
	}
	duration := int64(resolvedAt.Sub(e.BlockedAt).Seconds())
	e.ResolvedAt = &resolvedAt
	e.DurationSeconds = &duration
	e.Status = domain.StatusResolved
	return nil
}

func (f *fakeRepo) Active(ctx context.Context, symbol string) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		if e.Status != domain.StatusActive {
			continue
		}
		if symbol != "" && e.Symbol != symbol {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeRepo) Stats(ctx context.Context, symbol string) (*domain.Statistics, error) {
	stats := &domain.Statistics{Symbol: symbol}
	for _, e := range f.events {
		if e.Symbol != symbol {
			continue
		}
		stats.TotalBlocks++
		if e.Status == domain.StatusActive {
			stats.ActiveCount++
		} else {
			stats.ResolvedCount++
		}
		if e.RetryCount > stats.PeakRetryCount {
			stats.PeakRetryCount = e.RetryCount
		}
	}
	return stats, nil
}

func (f *fakeRepo) StatsAll(ctx context.Context) ([]domain.Statistics, error) {
	return nil, nil
}

func newTestService(repo domain.Repository, now time.Time) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	return svc
}

func TestOpen_RecordsActiveEvent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())

	id, err := svc.Open(context.Background(), "PETR4.SA", 1)
	require.NoError(t, err)

	active, err := svc.Active(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].ID)
	assert.Equal(t, 1, active[0].RetryCount)
	assert.Equal(t, domain.StatusActive, active[0].Status)
}

func TestOpen_SecondActiveEventRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())

	_, err := svc.Open(context.Background(), "PETR4.SA", 1)
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), "PETR4.SA", 2)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	// Other symbols are unaffected.
	_, err = svc.Open(context.Background(), "VALE3.SA", 1)
	assert.NoError(t, err)
}

func TestClose_ResolvesWithDuration(t *testing.T) {
	repo := newFakeRepo()
	blocked := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(repo, blocked)

	id, err := svc.Open(context.Background(), "PETR4.SA", 1)
	require.NoError(t, err)

	svc.now = func() time.Time { return blocked.Add(90*time.Second + 700*time.Millisecond) }
	require.NoError(t, svc.Close(context.Background(), id))

	e := repo.events[id]
	assert.Equal(t, domain.StatusResolved, e.Status)
	require.NotNil(t, e.DurationSeconds)
	assert.Equal(t, int64(90), *e.DurationSeconds, "duration is floored seconds")
	require.NotNil(t, e.ResolvedAt)
	assert.False(t, e.ResolvedAt.Before(e.BlockedAt))
}

func TestClose_IdempotentOnResolved(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())

	id, err := svc.Open(context.Background(), "PETR4.SA", 1)
	require.NoError(t, err)

	require.NoError(t, svc.Close(context.Background(), id))
	first := *repo.events[id].DurationSeconds

	require.NoError(t, svc.Close(context.Background(), id))
	assert.Equal(t, first, *repo.events[id].DurationSeconds)
}

func TestIsBlocked(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())

	blocked, err := svc.IsBlocked(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	assert.False(t, blocked)

	id, err := svc.Open(context.Background(), "PETR4.SA", 1)
	require.NoError(t, err)

	blocked, err = svc.IsBlocked(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, svc.Close(context.Background(), id))

	blocked, err = svc.IsBlocked(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestStats_PeakRetryCount(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now())

	id, err := svc.Open(context.Background(), "PETR4.SA", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background(), id))

	_, err = svc.Open(context.Background(), "PETR4.SA", 3)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalBlocks)
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Equal(t, 1, stats.ResolvedCount)
	assert.Equal(t, 3, stats.PeakRetryCount)
}

package ratelimit

import (
	"context"
	"time"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ratelimit"
	"github.com/rpsouza441/ticker-monitor/internal/metrics"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Service tracks throttling episodes: it opens ACTIVE events when the
// quote source blocks, resolves them on recovery, and serves aggregates.
type Service struct {
	repo ratelimit.Repository
	log  *logger.Logger

	// now is swapped out in tests
	now func() time.Time
}

// NewService creates a rate-limit tracker service.
func NewService(repo ratelimit.Repository) *Service {
	return &Service{
		repo: repo,
		log:  logger.Get().With("component", "rate_limit_tracker"),
		now:  time.Now,
	}
}

// Open records a new ACTIVE event for the symbol. A symbol may hold at
// most one ACTIVE event at a time; callers close the previous one first.
func (s *Service) Open(ctx context.Context, symbol string, retryCount int) (int64, error) {
	if symbol != "" {
		active, err := s.repo.Active(ctx, symbol)
		if err != nil {
			return 0, err
		}
		if len(active) > 0 {
			return 0, errors.Wrapf(errors.ErrAlreadyExists, "active rate limit event for %s", symbol)
		}
	}

	id, err := s.repo.Insert(ctx, symbol, s.now().UTC(), retryCount)
	if err != nil {
		return 0, err
	}

	metrics.ActiveRateLimits.Inc()
	s.log.Warnf("Rate limit recorded for %s (attempt %d)", symbol, retryCount)
	return id, nil
}

// Close resolves an event, stamping resolved_at and the floored duration.
// Closing an already-resolved event is a no-op.
func (s *Service) Close(ctx context.Context, eventID int64) error {
	if err := s.repo.Resolve(ctx, eventID, s.now().UTC()); err != nil {
		return err
	}

	metrics.ActiveRateLimits.Dec()
	s.log.Infof("Rate limit event %d resolved", eventID)
	return nil
}

// Active lists open events, optionally filtered by symbol.
func (s *Service) Active(ctx context.Context, symbol string) ([]ratelimit.Event, error) {
	return s.repo.Active(ctx, symbol)
}

// IsBlocked reports whether a symbol currently has an open event.
func (s *Service) IsBlocked(ctx context.Context, symbol string) (bool, error) {
	active, err := s.repo.Active(ctx, symbol)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

// Stats aggregates one symbol's throttling history.
func (s *Service) Stats(ctx context.Context, symbol string) (*ratelimit.Statistics, error) {
	return s.repo.Stats(ctx, symbol)
}

// StatsAll aggregates every symbol with recorded events.
func (s *Service) StatsAll(ctx context.Context) ([]ratelimit.Statistics, error) {
	return s.repo.StatsAll(ctx)
}

package persistence

import (
	"context"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/internal/metrics"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Service persists fetched snapshots. Each snapshot commits in its own
// transaction, so one record's failure never affects another.
type Service struct {
	repo ticker.Repository
	log  *logger.Logger
}

// NewService creates a persistence service.
func NewService(repo ticker.Repository) *Service {
	return &Service{
		repo: repo,
		log:  logger.Get().With("component", "persistence"),
	}
}

// SaveAll commits every snapshot, one transaction each, and returns the
// saved count plus the symbols that failed to commit.
func (s *Service) SaveAll(ctx context.Context, snapshots []*ticker.Snapshot) (int, []string) {
	saved := 0
	var failed []string

	for _, snap := range snapshots {
		if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
			s.log.Errorf("Failed to save %s: %v", snap.Symbol, err)
			failed = append(failed, snap.Symbol)
			continue
		}
		saved++
		metrics.SnapshotsSaved.Inc()
		s.log.Debugf("Saved %s: price=%s history=%d", snap.Symbol, snap.LastPrice, len(snap.History))
	}

	s.log.Infof("Persistence complete: %d saved, %d failed", saved, len(failed))
	return saved, failed
}

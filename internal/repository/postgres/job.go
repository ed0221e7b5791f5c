package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rpsouza441/ticker-monitor/internal/domain/job"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

// Compile-time check
var _ job.Repository = (*JobRepository)(nil)

// JobRepository implements job.Repository using sqlx
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert stores a new audit row and returns its id.
func (r *JobRepository) Insert(ctx context.Context, j *job.Job) (int64, error) {
	query := `
		INSERT INTO job_queue (
			ticker_list, scheduled_at, retry_count, status,
			last_attempted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now().UTC()

	var id int64
	err := r.db.GetContext(ctx, &id, query,
		pq.Array(j.TickerList), j.ScheduledAt, j.RetryCount, j.Status,
		j.LastAttemptedAt, now, now,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert job")
	}
	return id, nil
}

// SetStatus transitions a job row. The guard on the expected from-status
// makes illegal transitions (including double completion) fail loudly.
func (r *JobRepository) SetStatus(ctx context.Context, id int64, from, to job.Status, attemptedAt time.Time) error {
	if !from.CanTransition(to) {
		return errors.Wrapf(errors.ErrIllegalTransition, "%s -> %s", from, to)
	}

	query := `
		UPDATE job_queue
		SET status = $3, last_attempted_at = $4, updated_at = $5
		WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, to, attemptedAt, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "update job %d status", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrIllegalTransition, "job %d not in status %s", id, from)
	}
	return nil
}

// CompletedBetween reports whether any job row created in the window is
// in SUCCESS.
func (r *JobRepository) CompletedBetween(ctx context.Context, from, to time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM job_queue
			WHERE status = $1 AND created_at >= $2 AND created_at <= $3
		)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, job.StatusSuccess, from, to)
	if err != nil {
		return false, errors.Wrap(err, "check completed jobs")
	}
	return exists, nil
}

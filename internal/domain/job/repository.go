package job

import (
	"context"
	"time"
)

// Repository records job attempts for auditing and run-once-per-day checks.
type Repository interface {
	// Insert stores a new audit row and returns its id.
	Insert(ctx context.Context, j *Job) (int64, error)

	// SetStatus transitions a job row from one status to another.
	// The transition is guarded in SQL; a row not in the expected
	// from-status yields ErrIllegalTransition.
	SetStatus(ctx context.Context, id int64, from, to Status, attemptedAt time.Time) error

	// CompletedBetween reports whether any job row created in the given
	// window is in SUCCESS. Used for the at-most-once-per-day gate.
	CompletedBetween(ctx context.Context, from, to time.Time) (bool, error)
}

package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rpsouza441/ticker-monitor/pkg/errors"
)

// Status is the lifecycle state of an audit job row.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether a job in this status may never run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// legal transitions; RUNNING may fall back to PENDING on shutdown so the
// broker redelivery picks the job up after restart.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSuccess, StatusFailed, StatusPending},
}

// CanTransition reports whether s → to is a legal transition.
func (s Status) CanTransition(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Job is the audit row recorded for each attempted run.
type Job struct {
	ID              int64      `db:"id"`
	TickerList      []string   `db:"-"`
	ScheduledAt     time.Time  `db:"scheduled_at"`
	RetryCount      int        `db:"retry_count"`
	Status          Status     `db:"status"`
	LastAttemptedAt *time.Time `db:"last_attempted_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Transition moves the job to a new status, rejecting illegal moves.
func (j *Job) Transition(to Status) error {
	if !j.Status.CanTransition(to) {
		return errors.Wrapf(errors.ErrIllegalTransition, "%s -> %s", j.Status, to)
	}
	j.Status = to
	return nil
}

// Message is the queue payload: one collection job for a symbol list,
// due at ExecutionTime.
type Message struct {
	JobID         string    `json:"job_id"`
	TickerList    []string  `json:"ticker_list"`
	ExecutionTime time.Time `json:"execution_time"`
	RetryCount    int       `json:"retry_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewMessage builds a fresh message for the given symbols and due time.
func NewMessage(tickers []string, executionTime time.Time) *Message {
	now := time.Now().UTC()
	return &Message{
		JobID:         uuid.NewString(),
		TickerList:    tickers,
		ExecutionTime: executionTime,
		RetryCount:    0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Successor builds the next day's message: same symbol list, fresh id,
// retry count reset.
func (m *Message) Successor(executionTime time.Time) *Message {
	return NewMessage(m.TickerList, executionTime)
}

// WithRetry returns a copy with the retry count bumped, for republish
// after a handled failure.
func (m *Message) WithRetry() *Message {
	next := *m
	next.RetryCount++
	next.UpdatedAt = time.Now().UTC()
	return &next
}

// Encode serializes the message for the broker.
func (m *Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode job message")
	}
	return b, nil
}

// Decode parses a broker payload into a message.
func Decode(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "decode job message: %v", err)
	}
	if m.JobID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "job message missing job_id")
	}
	return &m, nil
}

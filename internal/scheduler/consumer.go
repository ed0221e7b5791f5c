package scheduler

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rpsouza441/ticker-monitor/internal/domain/job"
	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/internal/metrics"
	"github.com/rpsouza441/ticker-monitor/internal/services/fetch"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Fetcher runs the collection pipeline for a symbol list.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string) (*fetch.Result, error)
}

// Persister commits fetched snapshots.
type Persister interface {
	SaveAll(ctx context.Context, snapshots []*ticker.Snapshot) (int, []string)
}

// Queue publishes job messages back to the broker.
type Queue interface {
	Publish(ctx context.Context, body []byte) error
	PublishDead(ctx context.Context, body []byte) error
}

// Broker is the consuming side of the queue client.
type Broker interface {
	Queue
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// Config holds the consumer's scheduling knobs.
type Config struct {
	Location      *time.Location
	ExecutionHour int
	ExecutionMin  int
	RequeueDelay  time.Duration
	MaxRetries    int
	BackoffBase   int
	BackoffMax    int // seconds
}

// Consumer is the sole driver of work: it pulls one job message at a
// time, gates it on the wall clock, runs fetch and persistence, enqueues
// the successor job and settles the delivery.
type Consumer struct {
	broker      Broker
	fetcher     Fetcher
	persister   Persister
	jobs        job.Repository
	cfg         Config
	businessDay BusinessDayFunc
	log         *logger.Logger

	// now is swapped out in tests
	now func() time.Time
}

// NewConsumer wires the scheduler.
func NewConsumer(broker Broker, fetcher Fetcher, persister Persister, jobs job.Repository, cfg Config) *Consumer {
	return &Consumer{
		broker:      broker,
		fetcher:     fetcher,
		persister:   persister,
		jobs:        jobs,
		cfg:         cfg,
		businessDay: Weekdays,
		log:         logger.Get().With("component", "consumer"),
		now:         time.Now,
	}
}

// SetBusinessDay replaces the business-day predicate (holiday calendars).
func (c *Consumer) SetBusinessDay(fn BusinessDayFunc) {
	c.businessDay = fn
}

// Run consumes deliveries until the context is cancelled. One delivery
// is in flight at a time; the broker redelivers anything left unsettled
// at shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.broker.Consume(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCatastrophic, err.Error())
	}

	c.log.Info("Consumer started, waiting for jobs")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Consumer stopping")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Wrap(errors.ErrCatastrophic, "delivery channel closed")
			}
			if out := c.handleDelivery(ctx, d); out == outcomeFatal {
				// Leave the message to redelivery and fail loud; the
				// orchestrator restarts the process.
				return errors.Wrap(errors.ErrCatastrophic, "unrecoverable failure while processing job")
			}
		}
	}
}

// settlement of one delivery
type outcome int

const (
	// outcomeAck removes the delivery; any follow-up message was published.
	outcomeAck outcome = iota
	// outcomeRedeliver leaves the job to the broker (shutdown mid-flight).
	outcomeRedeliver
	// outcomeFatal leaves the job to the broker and stops the consumer.
	outcomeFatal
)

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) outcome {
	out := c.process(ctx, d.Body)
	switch out {
	case outcomeAck:
		if err := d.Ack(false); err != nil {
			c.log.Errorf("Failed to ack delivery: %v", err)
		}
	case outcomeRedeliver, outcomeFatal:
		if err := d.Nack(false, true); err != nil {
			c.log.Errorf("Failed to nack delivery: %v", err)
		}
	}
	return out
}

// process decides what to do with one message body.
func (c *Consumer) process(ctx context.Context, body []byte) outcome {
	msg, err := job.Decode(body)
	if err != nil {
		// A payload that cannot be decoded can never succeed; dead-letter it.
		c.log.Errorf("Undecodable job message: %v", err)
		if pubErr := c.broker.PublishDead(context.WithoutCancel(ctx), body); pubErr != nil {
			c.log.Errorf("Failed to dead-letter message: %v", pubErr)
		}
		return outcomeAck
	}

	log := c.log.With("job_id", msg.JobID)
	log.Infof("Job received: %d symbols, scheduled %s, attempt %d",
		len(msg.TickerList), msg.ExecutionTime.Format(time.RFC3339), msg.RetryCount+1)

	now := c.now().In(c.cfg.Location)

	if !c.businessDay(now) {
		// Push the whole job to the next business day's slot.
		next := NextExecution(now, c.cfg.Location, c.cfg.ExecutionHour, c.cfg.ExecutionMin, c.businessDay)
		moved := *msg
		moved.ExecutionTime = next
		moved.UpdatedAt = time.Now().UTC()
		log.Infof("Not a business day, moving job to %s", next.Format(time.RFC3339))
		return c.republish(ctx, &moved)
	}

	if msg.ExecutionTime.After(now) {
		// Cooperative poll: hold the message briefly, then put it back
		// unchanged and check again on redelivery.
		log.Debugf("Not due until %s, requeueing", msg.ExecutionTime.Format(time.RFC3339))
		if err := fetch.SleepCtx(ctx, c.cfg.RequeueDelay); err != nil {
			return outcomeRedeliver
		}
		return c.republish(ctx, msg)
	}

	// The message is due. A SUCCESS already recorded today means a
	// redelivered duplicate; drop it so the daily slot runs once.
	if alreadyRan, err := c.ranToday(ctx, now); err != nil {
		log.Errorf("Failed to check today's runs: %v", err)
		// Fail safe: proceed, idempotent writes bound the damage.
	} else if alreadyRan {
		log.Warn("Job already completed today, dropping duplicate")
		return outcomeAck
	}

	return c.runJob(ctx, msg, log)
}

// runJob executes one due job: audit row, fetch, persist, successor.
func (c *Consumer) runJob(ctx context.Context, msg *job.Message, log *logger.Logger) outcome {
	auditID, err := c.startAudit(ctx, msg)
	if err != nil {
		log.Errorf("Failed to record job start: %v", err)
		return c.fail(ctx, msg, 0, log)
	}

	result, err := c.fetcher.Fetch(ctx, msg.TickerList)
	if err != nil {
		if ctx.Err() != nil {
			c.revertToPending(auditID)
			return outcomeRedeliver
		}
		if errors.Is(err, errors.ErrCatastrophic) {
			log.Errorf("Catastrophic fetch failure: %v", err)
			c.revertToPending(auditID)
			return outcomeFatal
		}
		log.Errorf("Fetch failed: %v", err)
		return c.fail(ctx, msg, auditID, log)
	}

	// A run where every symbol failed produced nothing to persist and
	// nothing worth chaining; treat it as a job failure.
	if len(result.Successes) == 0 && len(result.PermanentFailures) > 0 {
		log.Errorf("All %d symbols failed this run", len(result.PermanentFailures))
		return c.fail(ctx, msg, auditID, log)
	}

	saved, failedSave := c.persister.SaveAll(ctx, result.Successes)
	if ctx.Err() != nil {
		c.revertToPending(auditID)
		return outcomeRedeliver
	}

	next := NextExecution(c.now(), c.cfg.Location, c.cfg.ExecutionHour, c.cfg.ExecutionMin, c.businessDay)
	successor := msg.Successor(next)
	body, err := successor.Encode()
	if err != nil {
		log.Errorf("Failed to encode successor job: %v", err)
		return c.fail(ctx, msg, auditID, log)
	}
	if err := c.broker.Publish(ctx, body); err != nil {
		log.Errorf("Failed to enqueue successor job: %v", err)
		return c.fail(ctx, msg, auditID, log)
	}

	if err := c.jobs.SetStatus(ctx, auditID, job.StatusRunning, job.StatusSuccess, c.now().UTC()); err != nil {
		log.Errorf("Failed to mark job success: %v", err)
	}
	metrics.JobsCompleted.WithLabelValues(string(job.StatusSuccess)).Inc()

	log.Infof("Job complete: %d saved, %d fetch failures, %d save failures; next run %s",
		saved, len(result.PermanentFailures), len(failedSave), next.Format(time.RFC3339))
	return outcomeAck
}

// startAudit inserts the attempt row and moves it to RUNNING.
func (c *Consumer) startAudit(ctx context.Context, msg *job.Message) (int64, error) {
	now := c.now().UTC()
	j := &job.Job{
		TickerList:      msg.TickerList,
		ScheduledAt:     msg.ExecutionTime.UTC(),
		RetryCount:      msg.RetryCount,
		Status:          job.StatusPending,
		LastAttemptedAt: &now,
	}

	id, err := c.jobs.Insert(ctx, j)
	if err != nil {
		return 0, err
	}
	if err := c.jobs.SetStatus(ctx, id, job.StatusPending, job.StatusRunning, now); err != nil {
		return 0, err
	}
	return id, nil
}

// fail handles a job failure: retry with backoff below the ceiling,
// dead-letter at the ceiling.
func (c *Consumer) fail(ctx context.Context, msg *job.Message, auditID int64, log *logger.Logger) outcome {
	if msg.RetryCount < c.cfg.MaxRetries {
		retry := msg.WithRetry()
		delay := fetch.Backoff(c.cfg.BackoffBase, c.cfg.BackoffMax, retry.RetryCount)

		log.Warnf("Retry %d/%d in %s", retry.RetryCount, c.cfg.MaxRetries, delay)
		if err := fetch.SleepCtx(ctx, delay); err != nil {
			c.revertToPending(auditID)
			return outcomeRedeliver
		}

		// This attempt's audit row stays non-terminal; the retry message
		// will produce the next one.
		c.revertToPending(auditID)
		return c.republish(ctx, retry)
	}

	log.Errorf("Job failed after %d attempts, dead-lettering", msg.RetryCount+1)
	if body, err := msg.Encode(); err == nil {
		if err := c.broker.PublishDead(context.WithoutCancel(ctx), body); err != nil {
			log.Errorf("Failed to dead-letter job: %v", err)
		}
	}

	if auditID != 0 {
		if err := c.jobs.SetStatus(context.WithoutCancel(ctx), auditID, job.StatusRunning, job.StatusFailed, c.now().UTC()); err != nil {
			log.Errorf("Failed to mark job failed: %v", err)
		}
	}
	metrics.JobsCompleted.WithLabelValues(string(job.StatusFailed)).Inc()
	return outcomeAck
}

// republish puts a message back on the primary queue and acks the
// original, carrying state (retry count, moved schedule) in the payload.
func (c *Consumer) republish(ctx context.Context, msg *job.Message) outcome {
	body, err := msg.Encode()
	if err != nil {
		c.log.Errorf("Failed to encode job for republish: %v", err)
		return outcomeAck
	}
	if err := c.broker.Publish(context.WithoutCancel(ctx), body); err != nil {
		c.log.Errorf("Failed to republish job: %v", err)
		// Keep the original delivery alive so the job is not lost.
		return outcomeRedeliver
	}
	return outcomeAck
}

// ranToday checks the audit table for a SUCCESS run in today's local window.
func (c *Consumer) ranToday(ctx context.Context, now time.Time) (bool, error) {
	start, end := dayBounds(now, c.cfg.Location)
	return c.jobs.CompletedBetween(ctx, start.UTC(), end.UTC())
}

// revertToPending puts the in-flight audit row back to PENDING so the
// redelivered message may run after restart. Uses a detached context:
// this runs on the shutdown path.
func (c *Consumer) revertToPending(auditID int64) {
	if auditID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.jobs.SetStatus(ctx, auditID, job.StatusRunning, job.StatusPending, c.now().UTC()); err != nil {
		c.log.Errorf("Failed to revert job %d to pending: %v", auditID, err)
	}
}

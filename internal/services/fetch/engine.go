package fetch

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rpsouza441/ticker-monitor/internal/adapters/quotes"
	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/internal/metrics"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Tracker records throttling episodes for the rate-limit table.
type Tracker interface {
	Open(ctx context.Context, symbol string, retryCount int) (int64, error)
	Close(ctx context.Context, eventID int64) error
}

// Config holds the engine's pacing and retry knobs.
type Config struct {
	BatchSize       int
	InterBatchDelay time.Duration
	BackoffBase     int
	BackoffMax      int // seconds
	MaxRetries      int
}

// Result is the outcome of one full fetch run. Every input symbol ends
// up in exactly one of the two sets.
type Result struct {
	Successes         []*ticker.Snapshot
	PermanentFailures []string
}

// Engine slices a job's symbols into batches, paces the quote source,
// retries transient failures with exponential backoff, and accumulates
// per-symbol outcomes. Per-symbol errors never abort the run; only
// catastrophic failures and shutdown propagate.
type Engine struct {
	source  quotes.Source
	tracker Tracker
	cfg     Config
	log     *logger.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a fetch engine.
func NewEngine(source quotes.Source, tracker Tracker, cfg Config) *Engine {
	return &Engine{
		source:  source,
		tracker: tracker,
		cfg:     cfg,
		log:     logger.Get().With("component", "fetch_engine"),
		sleep:   SleepCtx,
	}
}

// Fetch collects snapshots for all symbols, batch by batch, in input order.
func (e *Engine) Fetch(ctx context.Context, symbols []string) (*Result, error) {
	result := &Result{}
	batches := partition(symbols, e.cfg.BatchSize)

	e.log.Infof("Fetching %d symbols in %d batches", len(symbols), len(batches))

	for i, batch := range batches {
		if i > 0 {
			if err := e.sleep(ctx, e.cfg.InterBatchDelay); err != nil {
				return nil, err
			}
		}

		if err := e.fetchBatch(ctx, batch, result); err != nil {
			return nil, err
		}
	}

	e.log.Infof("Fetch complete: %s succeeded, %s failed permanently",
		humanize.Comma(int64(len(result.Successes))),
		humanize.Comma(int64(len(result.PermanentFailures))),
	)

	return result, nil
}

// fetchBatch runs one batch through the retry loop. Exhausting the retry
// ceiling marks every symbol in the batch as a permanent failure.
func (e *Engine) fetchBatch(ctx context.Context, batch []string, result *Result) error {
	started := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(started).Seconds())
	}()

	// ACTIVE throttle events opened for this batch, by symbol.
	open := make(map[string]int64)

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		res, err := e.source.FetchBatch(ctx, batch)
		if err == nil {
			e.closeEvents(ctx, open)
			e.collect(res, result)
			return nil
		}

		switch {
		case errors.Is(err, errors.ErrRateLimited):
			e.log.Warnf("Throttled on attempt %d/%d: %v", attempt, e.cfg.MaxRetries, err)
			e.reopenEvents(ctx, batch, attempt, open)

		case errors.Is(err, errors.ErrTransient):
			e.log.Warnf("Transient failure on attempt %d/%d: %v", attempt, e.cfg.MaxRetries, err)

		case errors.Is(err, errors.ErrPermanentData):
			// The provider rejected the batch outright; no retry will help.
			e.log.Errorf("Batch rejected: %v", err)
			e.failBatch(batch, result)
			return nil

		default:
			// Catastrophic or shutdown.
			return err
		}

		if attempt == e.cfg.MaxRetries {
			break
		}

		metrics.BatchRetries.Inc()
		wait := Backoff(e.cfg.BackoffBase, e.cfg.BackoffMax, attempt)
		e.log.Infof("Retrying batch in %s", wait)
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}

	e.log.Errorf("Batch failed after %d attempts: %v", e.cfg.MaxRetries, batch)
	e.failBatch(batch, result)
	return nil
}

// collect appends a successful batch response to the run result.
func (e *Engine) collect(res *quotes.BatchResult, result *Result) {
	result.Successes = append(result.Successes, res.Snapshots...)
	metrics.SymbolsFetched.Add(float64(len(res.Snapshots)))

	for _, f := range res.Failed {
		e.log.Warnf("Symbol %s failed permanently: %s", f.Symbol, f.Reason)
		result.PermanentFailures = append(result.PermanentFailures, f.Symbol)
	}
	metrics.SymbolsFailed.Add(float64(len(res.Failed)))
}

// failBatch marks every symbol of a batch as a permanent failure.
// Throttle events opened for the batch stay ACTIVE; there is no sweeper.
func (e *Engine) failBatch(batch []string, result *Result) {
	result.PermanentFailures = append(result.PermanentFailures, batch...)
	metrics.SymbolsFailed.Add(float64(len(batch)))
}

// reopenEvents records the current throttle episode. An event already
// open for a symbol is closed first: the tracker allows at most one
// ACTIVE event per symbol at a time.
func (e *Engine) reopenEvents(ctx context.Context, batch []string, attempt int, open map[string]int64) {
	for _, symbol := range batch {
		if id, ok := open[symbol]; ok {
			if err := e.tracker.Close(ctx, id); err != nil {
				e.log.Errorf("Failed to close rate limit event %d: %v", id, err)
			}
			delete(open, symbol)
		}

		id, err := e.tracker.Open(ctx, symbol, attempt)
		if err != nil {
			e.log.Errorf("Failed to open rate limit event for %s: %v", symbol, err)
			continue
		}
		open[symbol] = id
	}
}

// closeEvents resolves the batch's remaining throttle events after a
// successful call.
func (e *Engine) closeEvents(ctx context.Context, open map[string]int64) {
	for symbol, id := range open {
		if err := e.tracker.Close(ctx, id); err != nil {
			e.log.Errorf("Failed to close rate limit event %d for %s: %v", id, symbol, err)
		}
		delete(open, symbol)
	}
}

// partition slices symbols into chunks of size, preserving input order.
func partition(symbols []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}

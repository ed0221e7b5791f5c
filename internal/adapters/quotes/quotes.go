package quotes

import (
	"context"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
)

// Source is the quote provider capability the pipeline consumes.
// Implementations classify provider failures into the error taxonomy:
// a batch call returns either snapshots (with definitive per-symbol
// failures listed separately), or an error wrapping ErrRateLimited,
// ErrTransient, ErrPermanentData or, for rejected credentials,
// ErrCatastrophic. The fetch engine never sees provider HTTP details.
type Source interface {
	// Name identifies the provider in logs and health output.
	Name() string

	// FetchBatch retrieves quote snapshots for up to one batch of symbols.
	FetchBatch(ctx context.Context, symbols []string) (*BatchResult, error)

	// Health probes provider reachability.
	Health(ctx context.Context) error
}

// BatchResult is the outcome of one successful provider call.
type BatchResult struct {
	// Snapshots in provider arrival order.
	Snapshots []*ticker.Snapshot

	// Failed lists symbols the provider definitively rejected
	// (unknown symbol, malformed record). These are never retried.
	Failed []SymbolError
}

// SymbolError is a definitive per-symbol rejection.
type SymbolError struct {
	Symbol string
	Reason string
}

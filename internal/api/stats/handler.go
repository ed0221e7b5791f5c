package stats

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rpsouza441/ticker-monitor/internal/domain/ratelimit"
	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Tracker exposes the rate-limit read side.
type Tracker interface {
	Active(ctx context.Context, symbol string) ([]ratelimit.Event, error)
	Stats(ctx context.Context, symbol string) (*ratelimit.Statistics, error)
	StatsAll(ctx context.Context) ([]ratelimit.Statistics, error)
}

// Handler serves the operational read endpoints: open throttle events,
// per-symbol throttling aggregates and the latest stored price.
type Handler struct {
	tracker Tracker
	tickers ticker.Repository
	log     *logger.Logger
}

// New creates the ops read handler.
func New(tracker Tracker, tickers ticker.Repository) *Handler {
	return &Handler{
		tracker: tracker,
		tickers: tickers,
		log:     logger.Get().With("component", "stats_api"),
	}
}

// Register mounts the endpoints on an existing mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ratelimits/active", h.HandleActive)
	mux.HandleFunc("/ratelimits/stats", h.HandleStats)
	mux.HandleFunc("/prices/latest", h.HandleLatestPrice)
}

// HandleActive lists open throttle events, optionally for one symbol.
func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	events, err := h.tracker.Active(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"events": events, "count": len(events)})
}

// HandleStats serves throttling aggregates: one symbol when given,
// every symbol with events otherwise.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		stats, err := h.tracker.Stats(r.Context(), symbol)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, stats)
		return
	}

	all, err := h.tracker.StatsAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"symbols": all, "count": len(all)})
}

// HandleLatestPrice serves the most recent price sample for a symbol.
func (h *Handler) HandleLatestPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol query parameter is required", http.StatusBadRequest)
		return
	}

	sample, err := h.tickers.LatestPrice(r.Context(), symbol)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"symbol":      symbol,
		"price":       sample.Price,
		"volume":      sample.Volume,
		"observed_at": sample.ObservedAt,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errors.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.log.Errorf("Stats API failure: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

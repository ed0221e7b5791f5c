package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// Checker probes one dependency.
type Checker interface {
	Health(ctx context.Context) error
}

// Handler provides the liveness and readiness endpoints used by
// orchestrators. Readiness reports a boolean per dependency.
type Handler struct {
	log         *logger.Logger
	database    Checker
	queue       Checker
	quoteSource Checker
	startTime   time.Time
	serviceName string
}

// New creates a health handler over the three pipeline dependencies.
func New(database, queue, quoteSource Checker, serviceName string) *Handler {
	return &Handler{
		log:         logger.Get().With("component", "health"),
		database:    database,
		queue:       queue,
		quoteSource: quoteSource,
		startTime:   time.Now(),
		serviceName: serviceName,
	}
}

// Status is the readiness payload.
type Status struct {
	Healthy    bool              `json:"healthy"`
	Service    string            `json:"service"`
	Uptime     string            `json:"uptime"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]bool   `json:"components"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// HandleLiveness returns 200 OK while the process runs.
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// HandleReadiness probes every dependency and reports per-component
// booleans plus the overall verdict. 503 when any dependency is down.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := Status{
		Healthy:    true,
		Service:    h.serviceName,
		Uptime:     time.Since(h.startTime).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: make(map[string]bool),
		Errors:     make(map[string]string),
	}

	checks := map[string]Checker{
		"database":     h.database,
		"queue":        h.queue,
		"quote_source": h.quoteSource,
	}

	for name, checker := range checks {
		if err := checker.Health(ctx); err != nil {
			status.Components[name] = false
			status.Errors[name] = err.Error()
			status.Healthy = false
			continue
		}
		status.Components[name] = true
	}

	if len(status.Errors) == 0 {
		status.Errors = nil
	}

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		h.log.Warnf("Readiness check failed: %v", status.Components)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Router mounts the health endpoints and the metrics exporter.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.HandleLiveness)
	mux.HandleFunc("/readyz", h.HandleReadiness)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

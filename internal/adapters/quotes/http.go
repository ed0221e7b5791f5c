package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/rpsouza441/ticker-monitor/internal/adapters/config"
	"github.com/rpsouza441/ticker-monitor/internal/domain/ticker"
	"github.com/rpsouza441/ticker-monitor/pkg/errors"
	"github.com/rpsouza441/ticker-monitor/pkg/logger"
)

// HTTPSource fetches quote batches from the provider's REST API.
// A client-side pacing limiter smooths request bursts on top of the
// engine's inter-batch delay.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewHTTPSource creates the provider adapter.
func NewHTTPSource(cfg config.ProviderConfig, requestTimeout time.Duration) *HTTPSource {
	rps := float64(cfg.RequestsPerMinute) / 60.0
	burst := cfg.RequestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &HTTPSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.Get().With("component", "quote_source"),
	}
}

// Name identifies the provider.
func (s *HTTPSource) Name() string {
	return "http"
}

// wire format

type quotePayload struct {
	Symbol        string       `json:"symbol"`
	LastPrice     string       `json:"last_price"`
	Volume        *int64       `json:"volume"`
	Currency      string       `json:"currency"`
	AssetType     string       `json:"asset_type"`
	ObservedAt    time.Time    `json:"observed_at"`
	PERatio       *float64     `json:"pe_ratio"`
	EPS           *float64     `json:"eps"`
	DividendYield *float64     `json:"dividend_yield"`
	MarketCap     *int64       `json:"market_cap"`
	History       []historyBar `json:"history"`
	Error         *symbolError `json:"error"`
}

type historyBar struct {
	Date   string `json:"date"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume *int64 `json:"volume"`
}

type symbolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type quotesResponse struct {
	Quotes []quotePayload `json:"quotes"`
}

// FetchBatch retrieves one batch of symbols from the provider.
func (s *HTTPSource) FetchBatch(ctx context.Context, symbols []string) (*BatchResult, error) {
	if len(symbols) == 0 {
		return &BatchResult{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "quote source pacing")
	}

	endpoint := fmt.Sprintf("%s/v1/quotes?%s", s.baseURL, url.Values{
		"symbols": {strings.Join(symbols, ",")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build quote request")
	}
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	var payload quotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(errors.ErrTransient, "decode quote response: %v", err)
	}

	return s.toBatchResult(symbols, payload), nil
}

// toBatchResult maps the wire payload onto domain snapshots. Symbols the
// provider omitted or rejected become definitive failures.
func (s *HTTPSource) toBatchResult(requested []string, payload quotesResponse) *BatchResult {
	result := &BatchResult{}
	seen := make(map[string]bool, len(payload.Quotes))

	for _, q := range payload.Quotes {
		seen[q.Symbol] = true

		if q.Error != nil {
			result.Failed = append(result.Failed, SymbolError{
				Symbol: q.Symbol,
				Reason: q.Error.Code,
			})
			continue
		}

		snap, err := q.toSnapshot()
		if err != nil {
			s.log.Warnf("Malformed quote for %s: %v", q.Symbol, err)
			result.Failed = append(result.Failed, SymbolError{
				Symbol: q.Symbol,
				Reason: "malformed",
			})
			continue
		}
		result.Snapshots = append(result.Snapshots, snap)
	}

	for _, sym := range requested {
		if !seen[sym] {
			result.Failed = append(result.Failed, SymbolError{
				Symbol: sym,
				Reason: "not_found",
			})
		}
	}

	return result
}

func (q quotePayload) toSnapshot() (*ticker.Snapshot, error) {
	price, err := decimal.NewFromString(q.LastPrice)
	if err != nil {
		return nil, errors.Wrapf(err, "parse last_price %q", q.LastPrice)
	}

	snap := &ticker.Snapshot{
		Symbol:        q.Symbol,
		AssetType:     ticker.NormalizeAssetType(q.AssetType),
		Currency:      q.Currency,
		LastPrice:     ticker.TruncatePrice(price),
		Volume:        q.Volume,
		ObservedAt:    q.ObservedAt.UTC(),
		PERatio:       q.PERatio,
		EPS:           q.EPS,
		DividendYield: q.DividendYield,
		MarketCap:     q.MarketCap,
	}

	for _, h := range q.History {
		bar, err := h.toBar()
		if err != nil {
			return nil, errors.Wrapf(err, "parse history bar %s", h.Date)
		}
		snap.History = append(snap.History, bar)
	}

	return snap, nil
}

func (h historyBar) toBar() (ticker.Bar, error) {
	date, err := time.Parse("2006-01-02", h.Date)
	if err != nil {
		return ticker.Bar{}, err
	}

	var prices [4]decimal.Decimal
	for i, raw := range []string{h.Open, h.High, h.Low, h.Close} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return ticker.Bar{}, err
		}
		prices[i] = ticker.TruncatePrice(d)
	}

	return ticker.Bar{
		Date:   date,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: h.Volume,
	}, nil
}

// Health probes the provider ping endpoint.
func (s *HTTPSource) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/ping", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return errors.Wrapf(errors.ErrUnavailable, "provider returned %d", resp.StatusCode)
	}
	return nil
}

// classifyStatus maps a provider HTTP status onto the error taxonomy.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimited, "provider returned %d", code)
	case code >= 500:
		return errors.Wrapf(errors.ErrTransient, "provider returned %d", code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		// Bad credentials take the whole source down, not one batch.
		return errors.Wrapf(errors.ErrCatastrophic, "provider rejected credentials (%d)", code)
	default:
		return errors.Wrapf(errors.ErrPermanentData, "provider returned %d", code)
	}
}

// classifyTransportError maps network failures onto the taxonomy.
// Timeouts count as transient for retry purposes.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(errors.ErrTransient, "request timeout: %v", err)
	}
	return errors.Wrapf(errors.ErrTransient, "request failed: %v", err)
}

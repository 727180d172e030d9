package online

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skyreg/internal/egress"
	"skyreg/internal/platform/metrics"
	"skyreg/internal/registry"
	"skyreg/pkg/platform/circuit"
	"skyreg/pkg/platform/sentinel"
)

// ErrCircuitOpen short-circuits the online tier while the upstream is
// considered down; callers fall through to the local tier.
var ErrCircuitOpen = fmt.Errorf("upstream circuit open: %w", sentinel.ErrUnavailable)

// LookupError wraps an upstream failure with a normalized category.
type LookupError struct {
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream lookup: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("upstream lookup: %s", e.Message)
}

func (e *LookupError) Unwrap() error { return e.Err }

// attemptOutcome tags one attempt so the retry loop stays explicit: the
// caller decides to continue or stop based on the tag, no panics or
// exceptions in control flow.
type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRetry
	attemptFatal
)

// ClientConfig tunes the upstream lookup client.
type ClientConfig struct {
	// QueryURL is the search endpoint; the candidate is sent as the q
	// parameter.
	QueryURL string
	// MaxAttempts bounds retries per candidate (default 3).
	MaxAttempts int
	// Backoff is the base delay; attempt n waits n*Backoff.
	Backoff time.Duration
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration
	// RecoveryInterval is how long an open circuit blocks lookups before
	// letting a single call through to test the upstream (default 30s).
	RecoveryInterval time.Duration
}

// Client queries the upstream registry with bounded retry, forced session
// refresh on the first retry and a circuit breaker across candidates.
type Client struct {
	http      *http.Client
	sessions  *SessionManager
	validator *egress.Validator
	breaker   *circuit.Breaker
	metrics   *metrics.Metrics
	cfg       ClientConfig
}

// NewClient creates an upstream lookup client.
func NewClient(httpClient *http.Client, sessions *SessionManager, validator *egress.Validator, m *metrics.Metrics, cfg ClientConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Client{
		http:      httpClient,
		sessions:  sessions,
		validator: validator,
		breaker:   circuit.New("upstream-registry", circuit.WithOpenTimeout(cfg.RecoveryInterval)),
		metrics:   m,
		cfg:       cfg,
	}
}

// Lookup resolves one candidate upstream. It returns (nil, nil) for a
// confirmed absence; errors mean the candidate could not be checked.
func (c *Client) Lookup(ctx context.Context, candidate string) (*registry.Summary, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			// Backoff scales with the attempt number.
			select {
			case <-time.After(time.Duration(attempt) * c.cfg.Backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		// Re-establish the session forcibly on the first retry.
		summary, outcome, err := c.attempt(ctx, candidate, attempt == 1)
		switch outcome {
		case attemptOK:
			c.breaker.RecordSuccess()
			return summary, nil
		case attemptRetry:
			lastErr = err
		case attemptFatal:
			// Configuration vetoes say nothing about upstream health.
			if !errors.Is(err, egress.ErrUnsafeDestination) {
				c.breaker.RecordFailure()
			}
			return nil, err
		}
	}

	if errors.Is(lastErr, egress.ErrUnsafeDestination) {
		return nil, lastErr
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		lastErr = fmt.Errorf("%w (after: %v)", ErrCircuitOpen, lastErr)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, candidate string, forceSession bool) (*registry.Summary, attemptOutcome, error) {
	start := time.Now()

	cookie, err := c.sessions.Ensure(ctx, forceSession)
	if err != nil {
		c.metrics.RecordUpstream("session_error", time.Since(start))
		return nil, attemptRetry, err
	}

	queryURL := c.cfg.QueryURL + "?q=" + url.QueryEscape(candidate)
	if err := c.validator.Validate(queryURL); err != nil {
		return nil, attemptFatal, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, attemptFatal, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstream("network_error", time.Since(start))
		return nil, attemptRetry, &LookupError{Message: "request failed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decoding.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.metrics.RecordUpstream("transient_error", time.Since(start))
		return nil, attemptRetry, &LookupError{
			Status:    resp.StatusCode,
			Message:   fmt.Sprintf("transient status %d", resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// An expired session; the next attempt refreshes it.
		c.metrics.RecordUpstream("auth_error", time.Since(start))
		return nil, attemptRetry, &LookupError{
			Status:    resp.StatusCode,
			Message:   fmt.Sprintf("session rejected with status %d", resp.StatusCode),
			Retryable: true,
		}
	default:
		c.metrics.RecordUpstream("error", time.Since(start))
		return nil, attemptFatal, &LookupError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.RecordUpstream("bad_payload", time.Since(start))
		return nil, attemptFatal, &LookupError{Message: "undecodable payload", Err: err}
	}
	c.metrics.RecordUpstream("ok", time.Since(start))

	item := firstResult(payload)
	if item == nil {
		return nil, attemptOK, nil
	}
	summary := extractSummary(item)
	if summary.Registration == "" && summary.ModeSHex == "" {
		// A result item with no usable identifier is a miss.
		return nil, attemptOK, nil
	}
	return summary, attemptOK, nil
}

// resultListKeys are tried in order against the loosely-shaped upstream
// payload; the payload itself is used as the item when no list matches.
var resultListKeys = []string{"results", "data", "items", "aircraft", "records"}

func firstResult(payload map[string]any) map[string]any {
	for _, key := range resultListKeys {
		list, ok := payload[key].([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			if item, ok := entry.(map[string]any); ok {
				return item
			}
		}
		return nil
	}
	if len(payload) > 0 {
		return payload
	}
	return nil
}

// summaryKeys lists, per attribute, the candidate field names tried in order
// against a result item. First non-empty match wins, which tolerates
// upstream schema drift without a strict schema.
var summaryKeys = map[string][]string{
	"registration":  {"registration", "tail_number", "n_number", "nnumber", "ident"},
	"mode_s_hex":    {"mode_s_code_hex", "mode_s_hex", "icao24", "icao", "hex"},
	"serial_number": {"serial_number", "serialnumber", "serial"},
	"model":         {"model", "aircraft_model", "mfr_mdl_code", "type"},
	"owner":         {"owner", "registrant_name", "registrant", "name"},
	"city":          {"city"},
	"state":         {"state", "region"},
	"country":       {"country"},
	"status":        {"status", "status_code"},
}

func extractSummary(item map[string]any) *registry.Summary {
	return &registry.Summary{
		Registration: strings.ToUpper(stringField(item, "registration")),
		ModeSHex:     strings.ToUpper(stringField(item, "mode_s_hex")),
		SerialNumber: stringField(item, "serial_number"),
		Model:        stringField(item, "model"),
		Owner:        stringField(item, "owner"),
		City:         stringField(item, "city"),
		State:        stringField(item, "state"),
		Country:      stringField(item, "country"),
		Status:       stringField(item, "status"),
		Source:       "online",
	}
}

func stringField(item map[string]any, attr string) string {
	for _, key := range summaryKeys[attr] {
		switch v := item[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
		}
	}
	return ""
}

// Package online talks to the interactive upstream registry: session
// bootstrap, rate-limited lookups and the positive/negative outcome cache.
package online

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"skyreg/internal/egress"
	"skyreg/pkg/platform/sentinel"
)

// ErrSessionUnavailable means the bootstrap endpoint returned no credential
// material.
var ErrSessionUnavailable = fmt.Errorf("session unavailable: %w", sentinel.ErrUnavailable)

// SessionManager holds the process-wide upstream session cookie. Only Ensure
// mutates it; concurrent readers may briefly observe a stale credential,
// which costs one extra failed call and refresh, never a wrong result.
type SessionManager struct {
	client       *http.Client
	validator    *egress.Validator
	bootstrapURL string
	ttl          time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	cookie     string
	acquiredAt time.Time
}

// NewSessionManager creates a manager for the given bootstrap endpoint.
func NewSessionManager(client *http.Client, validator *egress.Validator, bootstrapURL string, ttl time.Duration, logger *slog.Logger) *SessionManager {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		client:       client,
		validator:    validator,
		bootstrapURL: bootstrapURL,
		ttl:          ttl,
		logger:       logger,
	}
}

// Ensure returns a valid session cookie, bootstrapping or refreshing it when
// absent, expired or forced.
func (m *SessionManager) Ensure(ctx context.Context, forceRefresh bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !forceRefresh && m.cookie != "" && time.Since(m.acquiredAt) < m.ttl {
		return m.cookie, nil
	}

	if err := m.validator.Validate(m.bootstrapURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.bootstrapURL, nil)
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return "", fmt.Errorf("%w: no cookies in bootstrap response", ErrSessionUnavailable)
	}

	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	m.cookie = strings.Join(pairs, "; ")
	m.acquiredAt = time.Now()
	m.logger.Debug("upstream session refreshed", "cookies", len(cookies))
	return m.cookie, nil
}

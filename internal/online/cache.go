package online

import (
	"context"
	"sync"
	"time"

	"skyreg/internal/registry"
)

// Outcome is one cached online resolution: either a summary or a confirmed
// absence. Entries are never served past their expiry.
type Outcome struct {
	Summary   *registry.Summary `json:"summary,omitempty"`
	NotFound  bool              `json:"notFound,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// OutcomeCache stores positive and negative online results per normalized
// candidate. Get returns nil for both absent and expired entries.
type OutcomeCache interface {
	Get(ctx context.Context, key string) (*Outcome, error)
	Put(ctx context.Context, key string, summary *registry.Summary) error
	Len(ctx context.Context) (int, error)
}

// MemoryCache is the process-local OutcomeCache. Expired entries are dropped
// lazily on read.
type MemoryCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]Outcome
}

// NewMemoryCache creates an empty cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]Outcome),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return &entry, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, summary *registry.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Outcome{
		Summary:   summary,
		NotFound:  summary == nil,
		ExpiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), nil
}

// Cooldown throttles repeated upstream attempts per candidate, independent
// of the outcome cache's expiry.
type Cooldown struct {
	window time.Duration
	mu     sync.Mutex
	last   map[string]time.Time
}

// NewCooldown creates a cooldown gate with the given minimum interval.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Begin reports whether an upstream attempt for key may proceed. The attempt
// timestamp is recorded before the call so a slow or failing call still
// throttles the next one.
func (c *Cooldown) Begin(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}

// Package resolver answers ad-hoc identifier queries from a blend of the
// online outcome cache, the upstream registry and the local canonical store.
// "Unknown identifier" is an expected outcome, never an error.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"skyreg/internal/online"
	"skyreg/internal/platform/metrics"
	"skyreg/internal/registry"
	"skyreg/internal/registry/store"
)

var hexKey = regexp.MustCompile(`^[0-9A-F]{6}$`)

// Config tunes a Resolver.
type Config struct {
	// RegistrationPrefix is the designated leading letter (or prefix) of
	// registration-style identifiers.
	RegistrationPrefix string
}

// Resolver owns its memo cache; the synchronizer clears it through the
// narrow Invalidate capability after a successful sync.
type Resolver struct {
	store    store.Store
	client   *online.Client // nil disables the online tier
	cache    online.OutcomeCache
	cooldown *online.Cooldown
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	prefix   string
	regKey   *regexp.Regexp
	flight   singleflight.Group

	memoMu sync.RWMutex
	// memo maps "kind:value" to the found record, or nil for a confirmed
	// local absence.
	memo map[string]*registry.Aircraft
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithOnline enables the online tier.
func WithOnline(client *online.Client, cache online.OutcomeCache, cooldown *online.Cooldown) Option {
	return func(r *Resolver) {
		r.client = client
		r.cache = cache
		r.cooldown = cooldown
	}
}

// New creates a Resolver over the canonical store.
func New(st store.Store, cfg Config, opts ...Option) *Resolver {
	prefix := cfg.RegistrationPrefix
	if prefix == "" {
		prefix = "N"
	}
	r := &Resolver{
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer("skyreg/resolver"),
		prefix: prefix,
		regKey: regexp.MustCompile(`^` + regexp.QuoteMeta(strings.ToUpper(prefix)) + `[A-Z0-9]+$`),
		memo:   make(map[string]*registry.Aircraft),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnlineEnabled reports whether the online tier is wired.
func (r *Resolver) OnlineEnabled() bool { return r.client != nil }

// Invalidate clears the local memo cache. Called by the synchronizer when a
// new registry generation lands.
func (r *Resolver) Invalidate() {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	r.memo = make(map[string]*registry.Aircraft)
}

// Resolve answers one identifier query. Either argument may be empty; a nil
// summary with a nil error means "unknown identifier".
func (r *Resolver) Resolve(ctx context.Context, identifier, hint string) (*registry.Summary, error) {
	identifier = strings.TrimSpace(identifier)
	hint = strings.TrimSpace(hint)
	if identifier == "" && hint == "" {
		return nil, nil
	}

	ctx, span := r.tracer.Start(ctx, "resolver.resolve",
		trace.WithAttributes(attribute.String("identifier", identifier)))
	defer span.End()

	if r.client != nil && identifier != "" {
		summary, decided := r.resolveOnline(ctx, identifier)
		if decided {
			// A fresh cached negative is authoritative for its TTL: no
			// local fallback.
			return summary, nil
		}
	}
	return r.resolveLocal(ctx, identifier, hint)
}

// resolveOnline walks the candidates through cache, cooldown and upstream.
// decided=true means a cached or live outcome settles the query, including a
// cached "known absent".
func (r *Resolver) resolveOnline(ctx context.Context, identifier string) (*registry.Summary, bool) {
	for _, cand := range Candidates(identifier, r.prefix) {
		entry, err := r.cache.Get(ctx, cand)
		if err != nil {
			r.logger.Warn("outcome cache read failed", "candidate", cand, "error", err)
		}
		if entry != nil {
			r.metrics.RecordCacheHit("online")
			if entry.NotFound {
				r.metrics.RecordLookup("online", "negative_hit")
				return nil, true
			}
			r.metrics.RecordLookup("online", "hit")
			return entry.Summary, true
		}
		r.metrics.RecordCacheMiss("online")

		// Attempted too recently; move on rather than hammer upstream.
		if !r.cooldown.Begin(cand) {
			continue
		}

		v, err, _ := r.flight.Do(cand, func() (any, error) {
			return r.client.Lookup(ctx, cand)
		})
		if err != nil {
			if errors.Is(err, online.ErrCircuitOpen) {
				r.logger.Debug("online tier short-circuited", "candidate", cand)
				return nil, false
			}
			// Exhausted retries count as a miss for this candidate only.
			r.logger.Warn("upstream lookup failed", "candidate", cand, "error", err)
			r.metrics.RecordLookup("online", "error")
			continue
		}

		summary, _ := v.(*registry.Summary)
		if putErr := r.cache.Put(ctx, cand, summary); putErr != nil {
			r.logger.Warn("outcome cache write failed", "candidate", cand, "error", putErr)
		}
		if summary != nil {
			r.metrics.RecordLookup("online", "hit")
			return summary, true
		}
		r.metrics.RecordLookup("online", "miss")
	}
	return nil, false
}

type localKey struct {
	kind  registry.KeyKind
	value string
}

func (r *Resolver) localKeys(identifier, hint string) []localKey {
	var keys []localKey
	if identifier != "" {
		norm := strings.ToUpper(identifier)
		if hexKey.MatchString(norm) {
			keys = append(keys, localKey{registry.KeyModeSHex, norm})
		}
		if r.regKey.MatchString(norm) {
			keys = append(keys, localKey{registry.KeyRegistration, norm})
		}
	}
	if code := DerivedCode(hint); code != "" {
		keys = append(keys, localKey{registry.KeyModeSHex, code})
	}
	return keys
}

func (r *Resolver) resolveLocal(ctx context.Context, identifier, hint string) (*registry.Summary, error) {
	for _, key := range r.localKeys(identifier, hint) {
		memoKey := string(key.kind) + ":" + key.value

		r.memoMu.RLock()
		rec, memoized := r.memo[memoKey]
		r.memoMu.RUnlock()
		if memoized {
			r.metrics.RecordCacheHit("memo")
			if rec != nil {
				r.metrics.RecordLookup("local", "hit")
				return rec.Summarize(), nil
			}
			continue
		}
		r.metrics.RecordCacheMiss("memo")

		found, err := r.store.FindByKey(ctx, key.kind, key.value)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.memoize(memoKey, nil)
				r.metrics.RecordLookup("local", "miss")
				continue
			}
			// Store trouble degrades to a miss; the caller sees null, not
			// an error, for something that may simply be unknown.
			r.logger.Error("local lookup failed", "kind", key.kind, "value", key.value, "error", err)
			continue
		}
		r.memoize(memoKey, found)
		r.metrics.RecordLookup("local", "hit")
		return found.Summarize(), nil
	}
	return nil, nil
}

func (r *Resolver) memoize(key string, rec *registry.Aircraft) {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	r.memo[key] = rec
}

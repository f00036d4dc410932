package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bastion/internal/admission/metrics"
	"bastion/internal/admission/models"
	"bastion/pkg/platform/requesttime"
)

// Cache serves a policy per endpoint class with at most one store fetch per
// TTL period per class. Get never fails: on a store error it returns the
// last known policy, or the built-in default if the class was never cached.
//
// Two concurrent callers hitting the same stale class may both fetch; the
// duplicate fetch is accepted to keep the hot path free of a global lock.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	m      *metrics.Metrics

	mu      sync.RWMutex
	entries map[models.EndpointClass]entry
}

type entry struct {
	policy    models.Policy
	fetchedAt time.Time
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) {
		c.m = m
	}
}

func NewCache(store Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:   store,
		ttl:     60 * time.Second,
		logger:  slog.Default(),
		entries: make(map[models.EndpointClass]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the policy for class, refreshing from the store when the
// cached entry is older than the TTL.
func (c *Cache) Get(ctx context.Context, class models.EndpointClass) models.Policy {
	now := requesttime.Now(ctx)

	c.mu.RLock()
	e, ok := c.entries[class]
	c.mu.RUnlock()

	if ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.policy
	}

	fetched, err := c.store.LoadPolicy(ctx, class)
	if err != nil {
		c.logger.Warn("policy load failed, serving fallback",
			"endpoint_class", class,
			"error", err,
		)
		if ok {
			// A failed refresh counts against the TTL too, so a store
			// outage cannot amplify fetch load.
			c.install(class, e.policy, now)
			c.m.ObservePolicyRefresh("fallback")
			return e.policy
		}
		c.install(class, models.DefaultPolicy(), now)
		c.m.ObservePolicyRefresh("default")
		return models.DefaultPolicy()
	}

	if !fetched.Valid() {
		c.logger.Warn("invalid policy values in store, substituting default",
			"endpoint_class", class,
			"max_attempts", fetched.MaxAttempts,
			"window", fetched.Window,
			"block_duration", fetched.BlockDuration,
			"mode", fetched.Mode,
		)
		fetched = models.DefaultPolicy()
		c.m.ObservePolicyRefresh("default")
	} else {
		c.m.ObservePolicyRefresh("store")
	}

	c.install(class, fetched, now)
	return fetched
}

func (c *Cache) install(class models.EndpointClass, p models.Policy, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[class] = entry{policy: p, fetchedAt: fetchedAt}
}

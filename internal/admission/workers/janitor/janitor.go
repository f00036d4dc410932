// Package janitor bounds counter-table memory by sweeping stale records on
// a fixed interval, outside the request path.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"bastion/internal/admission/metrics"
	"bastion/internal/admission/models"
	"bastion/internal/admission/store"
)

// Result summarizes a single sweep.
type Result struct {
	Scanned      int
	Evicted      int
	ActiveBlocks int
	Duration     time.Duration
}

type Option func(*Janitor)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(j *Janitor) {
		if interval > 0 {
			j.interval = interval
		}
	}
}

// WithIdleEvictionAge overrides how long an unblocked record may sit idle
// before eviction. Deliberately generous and independent of any policy's
// own window so long-idle keys are dropped even for short-window classes.
func WithIdleEvictionAge(age time.Duration) Option {
	return func(j *Janitor) {
		if age > 0 {
			j.idleAge = age
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) {
		j.metrics = m
	}
}

type Janitor struct {
	counters *store.CounterStore
	logger   *slog.Logger
	interval time.Duration
	idleAge  time.Duration
	metrics  *metrics.Metrics
}

func New(counters *store.CounterStore, opts ...Option) *Janitor {
	j := &Janitor{
		counters: counters,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		idleAge:  time.Hour,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start sweeps on the configured interval until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			res := j.RunOnce(time.Now())
			res.Duration = time.Since(start)

			j.logger.Info("admission_janitor_completed",
				"scanned", res.Scanned,
				"evicted", res.Evicted,
				"active_blocks", res.ActiveBlocks,
				"duration_ms", res.Duration.Milliseconds(),
			)
			j.metrics.ObserveJanitorRun("success", res.Evicted, res.ActiveBlocks, res.Duration.Seconds())

		case <-ctx.Done():
			j.logger.Info("admission janitor stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep as of now. A record is evicted when its
// block has expired untouched, or when it is unblocked and has been idle
// longer than the idle eviction age. Eviction takes the same per-key lock
// as normal mutation, so an in-flight check on the key is never raced.
func (j *Janitor) RunOnce(now time.Time) *Result {
	res := &Result{}
	for _, key := range j.counters.Keys() {
		res.Scanned++
		blockActive := false
		evicted := j.counters.EvictIf(key, func(r *models.CounterRecord) bool {
			if r.Blocked {
				if now.After(r.BlockedUntil) {
					return true
				}
				blockActive = true
				return false
			}
			return now.Sub(r.WindowStartedAt) > j.idleAge
		})
		if evicted {
			res.Evicted++
		}
		if blockActive {
			res.ActiveBlocks++
		}
	}
	return res
}

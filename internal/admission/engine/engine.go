// Package engine implements the admission decision state machine. For each
// (endpoint class, identity) key a counter record moves FRESH -> ACTIVE ->
// BLOCKED and back as windows and blocks expire.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bastion/internal/admission/metrics"
	"bastion/internal/admission/models"
	"bastion/internal/admission/policy"
	"bastion/internal/admission/store"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/audit"
	"bastion/pkg/platform/requesttime"
)

const reasonBlocked = "too many attempts, blocked"

// AuditPublisher receives advisory events on block and reset transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, e audit.Event) error
}

type Engine struct {
	policies *policy.Cache
	counters *store.CounterStore
	audit    AuditPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(policies *policy.Cache, counters *store.CounterStore, opts ...Option) (*Engine, error) {
	if policies == nil {
		return nil, fmt.Errorf("policy cache is required")
	}
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}

	e := &Engine{
		policies: policies,
		counters: counters,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Check decides whether one operation for (class, identity) may proceed.
// It never fails for business reasons; the only error is a caller contract
// violation (empty class or identity).
//
// In optimistic mode every allowed check consumes one unit of budget. In
// explicit mode Check only inspects the count accumulated by RecordFailure.
func (e *Engine) Check(ctx context.Context, class models.EndpointClass, identity string) (*models.Decision, error) {
	key, err := models.NewKey(class, identity)
	if err != nil {
		return nil, err
	}

	pol := e.policies.Get(ctx, class)
	now := requesttime.Now(ctx)

	var decision models.Decision
	var blockEvent *models.BlockEvent

	e.counters.Update(key, func(r *models.CounterRecord) {
		if r.Blocked {
			if now.Before(r.BlockedUntil) {
				decision = deny(pol, ceilSeconds(r.BlockedUntil.Sub(now)))
				return
			}
			// Block expiry always resets the window: a grace period,
			// not a rolling continuation.
			r.ResetWindow(now)
		} else if r.WindowExpired(now, pol.Window) {
			// Covers fresh records too: the zero window start is long expired.
			r.ResetWindow(now)
		}

		if r.Count >= pol.MaxAttempts {
			r.Block(now, pol.BlockDuration)
			blockEvent = models.NewBlockEvent(key, r.Count, r.BlockedUntil, now, pol.Window)
			decision = deny(pol, ceilSeconds(pol.BlockDuration))
			return
		}

		if pol.Mode == models.ModeOptimistic {
			r.Count++
		}
		decision = allow(pol, pol.MaxAttempts-r.Count)
	})

	if blockEvent != nil {
		e.onBlocked(ctx, blockEvent)
	}
	e.metrics.ObserveCheck(class.String(), outcome(decision.Allowed))

	return &decision, nil
}

// RecordFailure counts one observed failure against (class, identity) and
// blocks the key once the count reaches the policy ceiling. Each call
// increments; callers invoke it exactly once per failure. Intended for
// explicit-mode classes, where Check does not consume budget.
//
// Failures reported while a block is active are ignored: blocks expire at
// the originally computed time and are never extended.
func (e *Engine) RecordFailure(ctx context.Context, class models.EndpointClass, identity string) error {
	key, err := models.NewKey(class, identity)
	if err != nil {
		return err
	}

	pol := e.policies.Get(ctx, class)
	now := requesttime.Now(ctx)

	var blockEvent *models.BlockEvent

	e.counters.Update(key, func(r *models.CounterRecord) {
		if r.Blocked {
			if now.Before(r.BlockedUntil) {
				return
			}
			r.ResetWindow(now)
		} else if r.WindowExpired(now, pol.Window) {
			r.ResetWindow(now)
		}

		r.Count++
		if r.Count >= pol.MaxAttempts {
			r.Block(now, pol.BlockDuration)
			blockEvent = models.NewBlockEvent(key, r.Count, r.BlockedUntil, now, pol.Window)
		}
	})

	if blockEvent != nil {
		e.onBlocked(ctx, blockEvent)
	}
	return nil
}

// RecordSuccess is deliberately a no-op in both modes. Success never resets
// or decrements the accumulated failure count, so a single valid credential
// pair cannot launder a near-blocked window. The method stays on the API as
// an affordance for future policies.
func (e *Engine) RecordSuccess(_ context.Context, class models.EndpointClass, identity string) error {
	_, err := models.NewKey(class, identity)
	return err
}

// Reset clears all state for (class, identity), including an active block.
// Administrative override, e.g. invoked by a support operator. Resetting an
// untracked key is a no-op.
func (e *Engine) Reset(ctx context.Context, class models.EndpointClass, identity string) error {
	key, err := models.NewKey(class, identity)
	if err != nil {
		return err
	}

	e.counters.Delete(key)
	e.metrics.ObserveReset()

	e.logger.InfoContext(ctx, "admission counter reset",
		"endpoint_class", class,
		"identity", identity,
	)
	if e.audit != nil {
		ev := audit.NewEvent(audit.ActionReset, requesttime.Now(ctx))
		ev.EndpointClass = class.String()
		ev.Identity = identity
		_ = e.audit.Emit(ctx, ev)
	}
	return nil
}

// Inspect returns a read-only snapshot of the key's counter record for
// operator tooling. It never creates a record.
func (e *Engine) Inspect(_ context.Context, class models.EndpointClass, identity string) (*models.Snapshot, error) {
	key, err := models.NewKey(class, identity)
	if err != nil {
		return nil, err
	}

	var snap models.Snapshot
	found := e.counters.View(key, func(r *models.CounterRecord) {
		snap = models.Snapshot{
			Class:           class,
			Identity:        identity,
			Count:           r.Count,
			WindowStartedAt: r.WindowStartedAt,
			Blocked:         r.Blocked,
		}
		if r.Blocked {
			until := r.BlockedUntil
			snap.BlockedUntil = &until
		}
	})
	if !found {
		return nil, dErrors.New(dErrors.CodeNotFound, "no counter record for key "+key.String())
	}
	return &snap, nil
}

func (e *Engine) onBlocked(ctx context.Context, ev *models.BlockEvent) {
	e.metrics.ObserveBlock(ev.Class.String())
	e.logger.InfoContext(ctx, "admission key blocked",
		"event", audit.ActionBlocked,
		"log_type", "audit",
		"endpoint_class", ev.Class,
		"identity", ev.Identity,
		"attempts", ev.Attempts,
		"blocked_until", ev.BlockedUntil,
	)
	if e.audit == nil {
		return
	}
	auditEvent := audit.Event{
		ID:            ev.ID,
		Timestamp:     ev.OccurredAt,
		Action:        audit.ActionBlocked,
		EndpointClass: ev.Class.String(),
		Identity:      ev.Identity,
		Attempts:      ev.Attempts,
		RetryAfter:    ceilSeconds(ev.BlockedUntil.Sub(ev.OccurredAt)),
		Reason:        reasonBlocked,
	}
	_ = e.audit.Emit(ctx, auditEvent)
}

func allow(pol models.Policy, remaining int) models.Decision {
	return models.Decision{
		Allowed:   true,
		Limit:     pol.MaxAttempts,
		Remaining: remaining,
	}
}

func deny(pol models.Policy, retryAfter int) models.Decision {
	return models.Decision{
		Allowed:    false,
		Limit:      pol.MaxAttempts,
		RetryAfter: retryAfter,
		Reason:     reasonBlocked,
	}
}

func outcome(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

// ceilSeconds rounds a duration up to whole seconds so callers never
// under-wait.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

package models

import (
	"fmt"
	"time"

	dErrors "bastion/pkg/domain-errors"

	"github.com/google/uuid"
)

// EndpointClass names a family of protected operations sharing one limit
// policy. Classes are defined by the caller; the engine treats them as
// opaque keys. The constants below cover the families the surrounding
// system protects today.
type EndpointClass string

const (
	ClassLogin         EndpointClass = "login"
	ClassPasswordReset EndpointClass = "password-reset"
	ClassRegister      EndpointClass = "register"
	ClassContentCreate EndpointClass = "content-create"
	ClassAdminAction   EndpointClass = "admin-action"
)

func (c EndpointClass) String() string {
	return string(c)
}

// ConsumptionMode governs when a check consumes attempt budget.
type ConsumptionMode string

const (
	// ModeOptimistic consumes one unit on every check, regardless of the
	// underlying operation's outcome.
	ModeOptimistic ConsumptionMode = "optimistic"
	// ModeExplicit consumes only via RecordFailure; checks merely inspect
	// the accumulated count.
	ModeExplicit ConsumptionMode = "explicit"
)

func (m ConsumptionMode) IsValid() bool {
	return m == ModeOptimistic || m == ModeExplicit
}

// ParseConsumptionMode validates a stored mode string.
func ParseConsumptionMode(s string) (ConsumptionMode, error) {
	m := ConsumptionMode(s)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid consumption mode %q", s))
	}
	return m, nil
}

// Policy holds the limit parameters for one endpoint class. Policies are
// owned by the policy store; the engine only reads and caches them.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
	Mode          ConsumptionMode
}

// Valid reports whether every policy field is usable. Invalid policies read
// from storage are replaced with DefaultPolicy by the cache, never served.
func (p Policy) Valid() bool {
	return p.MaxAttempts >= 1 && p.Window > 0 && p.BlockDuration > 0 && p.Mode.IsValid()
}

// DefaultPolicy is served when a class was never configured or the policy
// source is unavailable, so new endpoint classes are safe from the first call.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   20,
		Window:        time.Hour,
		BlockDuration: 15 * time.Minute,
		Mode:          ModeOptimistic,
	}
}

// Key identifies one counter record.
type Key struct {
	Class    EndpointClass
	Identity string
}

func NewKey(class EndpointClass, identity string) (Key, error) {
	if class == "" {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "endpoint class cannot be empty")
	}
	if identity == "" {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	return Key{Class: class, Identity: identity}, nil
}

func (k Key) String() string {
	return string(k.Class) + ":" + k.Identity
}

// CounterRecord tracks attempts within the current window and any active
// block for one (class, identity) key. It is exclusively owned by the
// counter store; all mutation happens under the store's per-key lock.
type CounterRecord struct {
	Count           int
	WindowStartedAt time.Time
	Blocked         bool
	BlockedUntil    time.Time
}

// BlockActive reports whether the record is blocked as of now.
func (r *CounterRecord) BlockActive(now time.Time) bool {
	return r.Blocked && now.Before(r.BlockedUntil)
}

// WindowExpired reports whether the counting window has fully elapsed.
func (r *CounterRecord) WindowExpired(now time.Time, window time.Duration) bool {
	return now.Sub(r.WindowStartedAt) > window
}

// ResetWindow clears any block and restarts the window at now.
func (r *CounterRecord) ResetWindow(now time.Time) {
	r.Count = 0
	r.WindowStartedAt = now
	r.Blocked = false
	r.BlockedUntil = time.Time{}
}

// Block transitions the record into the blocked state until now + d.
func (r *CounterRecord) Block(now time.Time, d time.Duration) {
	r.Blocked = true
	r.BlockedUntil = now.Add(d)
}

// Snapshot is a read-only copy of a counter record for operator inspection.
type Snapshot struct {
	Class           EndpointClass `json:"class"`
	Identity        string        `json:"identity"`
	Count           int           `json:"count"`
	WindowStartedAt time.Time     `json:"window_started_at"`
	Blocked         bool          `json:"blocked"`
	BlockedUntil    *time.Time    `json:"blocked_until,omitempty"`
}

// Decision is the admission verdict for one check. Decisions are transient
// and never persisted.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds, rounded up; only set when denied
	Reason     string `json:"reason,omitempty"`
}

// BlockEvent records a key's transition into the blocked state, for the
// audit trail and monitoring. Advisory only; emitting it must never fail
// the admission decision.
type BlockEvent struct {
	ID            string        `json:"id"`
	Class         EndpointClass `json:"class"`
	Identity      string        `json:"identity"`
	Attempts      int           `json:"attempts"`
	BlockedUntil  time.Time     `json:"blocked_until"`
	OccurredAt    time.Time     `json:"occurred_at"`
	WindowSeconds int           `json:"window_seconds"`
}

func NewBlockEvent(key Key, attempts int, blockedUntil, now time.Time, window time.Duration) *BlockEvent {
	return &BlockEvent{
		ID:            uuid.NewString(),
		Class:         key.Class,
		Identity:      key.Identity,
		Attempts:      attempts,
		BlockedUntil:  blockedUntil,
		OccurredAt:    now,
		WindowSeconds: int(window.Seconds()),
	}
}

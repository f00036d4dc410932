// Package audit defines the structured events the admission engine emits
// when keys change state. Events are advisory: sinks may drop them, and
// emission must never block or fail an admission decision.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is emitted from domain logic to capture key state transitions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	EndpointClass string    `json:"endpoint_class"`
	Identity      string    `json:"identity"`
	Attempts      int       `json:"attempts,omitempty"`
	RetryAfter    int       `json:"retry_after,omitempty"` // seconds
	Reason        string    `json:"reason,omitempty"`
}

// Actions emitted by the admission engine.
const (
	ActionBlocked = "admission_blocked"
	ActionReset   = "admission_reset"
)

// NewEvent stamps an event with an ID and timestamp.
func NewEvent(action string, at time.Time) Event {
	e := Event{
		ID:        uuid.NewString(),
		Timestamp: at,
		Action:    action,
	}
	return e
}

// Store is the sink events are appended to.
type Store interface {
	Append(ctx context.Context, e Event) error
}

package audit

import (
	"context"
	"log/slog"
)

// SlogStore writes events to a structured logger. This is the default
// collaborator in deployments where the audit sink is log shipping.
type SlogStore struct {
	logger *slog.Logger
}

func NewSlogStore(logger *slog.Logger) *SlogStore {
	return &SlogStore{logger: logger}
}

func (s *SlogStore) Append(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, e.Action,
		"log_type", "audit",
		"event_id", e.ID,
		"endpoint_class", e.EndpointClass,
		"identity", e.Identity,
		"attempts", e.Attempts,
		"retry_after", e.RetryAfter,
		"reason", e.Reason,
	)
	return nil
}

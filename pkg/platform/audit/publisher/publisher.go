// Package publisher delivers audit events to a sink without ever blocking
// the admission path.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/audit"
)

// Publisher captures structured audit events. It is append-only and uses
// the store layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store  audit.Store
	events chan audit.Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine; when the
// buffer is full the event is dropped, never queued synchronously.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

// WithLogger sets a logger for async error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.store.Append(context.Background(), event); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to persist audit event",
					"error", err,
					"action", event.Action,
					"endpoint_class", event.EndpointClass,
				)
			}
		}
	}
}

// Close shuts down the async publisher and drains pending events.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records an event. In async mode the send never blocks; a full
// buffer drops the event and reports it through the logger.
func (p *Publisher) Emit(ctx context.Context, e audit.Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if !p.async {
		return p.store.Append(ctx, e)
	}
	select {
	case p.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, event dropped",
				"action", e.Action,
				"endpoint_class", e.EndpointClass,
			)
		}
		return dErrors.New(dErrors.CodeInternal, "audit buffer full")
	}
}

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events. Implementations must tolerate concurrent use.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. The durable stores remain the
// source of truth for protocol state; this stream is observability fan-out,
// so a full buffer drops events rather than blocking a request.
type Publisher struct {
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and delivered in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher delivering to the given sink.
func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and delivers events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.sink.Append(context.Background(), event); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to deliver audit event",
					"error", err,
					"action", event.Action,
					"content_hash", event.ContentHash,
				)
			}
		}
	}
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records an audit event. In async mode delivery is best-effort: a full
// buffer drops the event with a log line instead of stalling the caller.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if p.async {
		select {
		case p.events <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, event dropped",
					"action", event.Action,
					"content_hash", event.ContentHash,
				)
			}
			return nil
		}
	}

	return p.sink.Append(ctx, event)
}

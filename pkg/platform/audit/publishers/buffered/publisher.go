// Package buffered decouples audit emission from slow sinks. Emit never
// blocks a request; a background loop drains events to the sink in batches.
package buffered

import (
	"context"
	"log/slog"
	"time"

	audit "fleetops/pkg/platform/audit"
)

const (
	defaultCapacity      = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
)

// Publisher buffers events in a ring and forwards them to sink from Run.
type Publisher struct {
	sink          audit.Emitter
	buffer        *ringBuffer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithCapacity bounds the number of pending events.
func WithCapacity(n int) Option {
	return func(p *Publisher) { p.buffer = newRingBuffer(n) }
}

// WithBatchSize sets how many events are forwarded per drain.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets the drain period.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// New wraps sink.
func New(sink audit.Emitter, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		sink:          sink,
		buffer:        newRingBuffer(defaultCapacity),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Emit enqueues the event and returns immediately.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	p.buffer.enqueue(event)
	return nil
}

// Pending returns the number of events waiting to be forwarded.
func (p *Publisher) Pending() int { return p.buffer.len() }

// Dropped returns how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 { return p.buffer.droppedCount() }

// Run drains the buffer until ctx is cancelled, then flushes what remains
// using a detached context.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush forwards every pending event. Sink failures are logged and the
// failed event is not retried.
func (p *Publisher) Flush(ctx context.Context) {
	for {
		batch := p.buffer.dequeue(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.sink.Emit(ctx, event); err != nil {
				p.logger.ErrorContext(ctx, "failed to forward audit event",
					"error", err,
					"action", string(event.Action),
					"event_id", event.ID,
				)
			}
		}
	}
}

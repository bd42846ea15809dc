package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"fleetops/pkg/requestcontext"
)

// Emitter accepts audit events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Enrich fills identifiers, timestamp, category and request metadata that the
// caller left empty.
func Enrich(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
		if event.Category == CategorySecurity {
			event.Severity = SeverityWarning
		}
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
	return event
}

// Publisher enriches events and forwards them to every configured sink.
// A failing sink does not stop delivery to the others.
type Publisher struct {
	sinks []Emitter
}

// NewPublisher builds a publisher over sinks. Nil sinks are skipped.
func NewPublisher(sinks ...Emitter) *Publisher {
	p := &Publisher{}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// Emit enriches the event and delivers it to all sinks, joining their errors.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	event = Enrich(ctx, event)
	var errs []error
	for _, s := range p.sinks {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event at warn level for security events and info otherwise.
func (s *LogSink) Emit(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Category == CategorySecurity {
		level = slog.LevelWarn
	}
	attrs := []any{
		"event_id", event.ID,
		"action", string(event.Action),
		"category", string(event.Category),
		"request_id", event.RequestID,
	}
	if !event.AccountID.IsZero() {
		attrs = append(attrs, "account_id", event.AccountID.String())
	}
	if !event.ActorID.IsZero() {
		attrs = append(attrs, "actor_id", event.ActorID.String())
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.ClientIP != "" {
		attrs = append(attrs, "client_ip", event.ClientIP)
	}
	for k, v := range event.Detail {
		attrs = append(attrs, k, v)
	}
	s.logger.Log(ctx, level, "audit", attrs...)
	return nil
}

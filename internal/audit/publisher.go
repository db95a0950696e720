package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mssola/useragent"

	"lexlink/internal/platform/metrics"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/tx"
	"lexlink/pkg/requestcontext"
)

// Sink receives events after they are durably appended (and, inside a unit
// of work, after it commits). Enqueue must not block.
type Sink interface {
	Enqueue(event Event) bool
}

// Publisher appends events to the ledger. Emit is fail-closed and returns
// persistence errors to the caller; Record is best-effort and only logs.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	sink    Sink
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSink fans appended events out, typically to the Kafka worker.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills request-scoped fields the caller left empty, enriches the
// metadata with the parsed user agent and appends the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.OwnerID.IsNil() {
		return fmt.Errorf("audit event requires an owner")
	}
	if event.Kind == "" {
		return fmt.Errorf("audit event requires a kind")
	}
	event = p.prepare(ctx, event)

	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncAuditAppendFailure(string(event.Kind))
		p.logger.ErrorContext(ctx, "audit append failed",
			"kind", event.Kind,
			"owner_id", event.OwnerID.String(),
			"request_id", event.RequestID,
			"error", err,
		)
		return fmt.Errorf("audit append failed: %w", err)
	}

	if p.sink != nil {
		tx.AfterCommit(ctx, func() {
			p.sink.Enqueue(event)
		})
	}
	return nil
}

// List reads the ledger.
func (p *Publisher) List(ctx context.Context, q Query) ([]Event, error) {
	return p.store.List(ctx, q)
}

func (p *Publisher) prepare(ctx context.Context, event Event) Event {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.Timestamp = event.Timestamp.UTC()
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID.IsNil() {
		if caller := requestcontext.UserID(ctx); !caller.IsNil() && caller != event.OwnerID {
			event.ActorID = caller
		}
	}
	if event.UserAgent != "" {
		event.Metadata = enrichUserAgent(event.Metadata, event.UserAgent)
	}
	return event
}

// enrichUserAgent copies metadata and adds the parsed browser, OS and device
// class. Keys already present are left alone.
func enrichUserAgent(metadata map[string]any, raw string) map[string]any {
	out := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		out[k] = v
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	if _, ok := out["browser"]; !ok && name != "" {
		if version != "" {
			name += " " + version
		}
		out["browser"] = name
	}
	if _, ok := out["os"]; !ok {
		if osName := ua.OS(); osName != "" {
			out["os"] = osName
		}
	}
	if _, ok := out["device"]; !ok {
		switch {
		case ua.Bot():
			out["device"] = "bot"
		case ua.Mobile():
			out["device"] = "mobile"
		default:
			out["device"] = "desktop"
		}
	}
	return out
}

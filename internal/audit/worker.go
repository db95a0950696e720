package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"lexlink/internal/platform/metrics"
)

// Producer publishes a keyed record. Implemented by the Kafka producer.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// drainTimeout bounds how long Run keeps publishing queued events after its
// context is cancelled.
const drainTimeout = 5 * time.Second

// Worker publishes appended events to the compliance topic in the
// background. It is a Sink; a full queue drops the event and counts it.
type Worker struct {
	producer Producer
	inbox    chan Event
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewWorker(producer Producer, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Worker{
		producer: producer,
		inbox:    make(chan Event, queueSize),
		logger:   logger,
		metrics:  m,
	}
}

// Enqueue hands the event to the worker without blocking.
func (w *Worker) Enqueue(event Event) bool {
	select {
	case w.inbox <- event:
		return true
	default:
		w.metrics.IncAuditPublishFailure("queue_full")
		w.logger.Warn("audit publish queue full, dropping event",
			"kind", event.Kind,
			"event_id", event.ID.String(),
		)
		return false
	}
}

// Run publishes events until ctx is cancelled, then drains what is queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.publish(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.publish(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		w.metrics.IncAuditPublishFailure("encode")
		w.logger.ErrorContext(ctx, "encode audit event", "event_id", event.ID.String(), "error", err)
		return
	}
	if err := w.producer.Produce(ctx, []byte(event.OwnerID.String()), value); err != nil {
		w.metrics.IncAuditPublishFailure("produce")
		w.logger.ErrorContext(ctx, "publish audit event",
			"kind", event.Kind,
			"event_id", event.ID.String(),
			"error", err,
		)
		return
	}
	w.metrics.IncAuditPublished()
}

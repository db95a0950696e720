package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexlink/internal/platform/metrics"
)

type fakeProducer struct {
	mu      sync.Mutex
	records map[string][]byte
	err     error
}

func (f *fakeProducer) Produce(_ context.Context, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.records == nil {
		f.records = map[string][]byte{}
	}
	f.records[string(key)] = value
	return nil
}

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_PublishesQueuedEvents(t *testing.T) {
	producer := &fakeProducer{}
	m := metrics.New(prometheus.NewRegistry())
	w := NewWorker(producer, 4, discardLogger(), m)

	e := event(ownerA, KindConsentUpdated, t0)
	require.True(t, w.Enqueue(e))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(producer.records[ownerA.String()], &decoded))
	assert.Equal(t, "consent_updated", decoded["kind"])
	assert.Equal(t, ownerA.String(), decoded["ownerId"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEventsPublished))
}

func TestWorker_EnqueueDropsWhenFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	w := NewWorker(&fakeProducer{}, 1, discardLogger(), m)

	assert.True(t, w.Enqueue(event(ownerA, KindConsentUpdated, t0)))
	assert.False(t, w.Enqueue(event(ownerA, KindConsentUpdated, t0)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditPublishFailures.WithLabelValues("queue_full")))
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	producer := &fakeProducer{}
	w := NewWorker(producer, 4, discardLogger(), nil)
	require.True(t, w.Enqueue(event(ownerA, KindConsentUpdated, t0)))
	require.True(t, w.Enqueue(event(ownerB, KindConsentUpdated, t0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx)

	assert.Equal(t, 2, producer.count())
}

func TestWorker_ProduceFailureIsCounted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	w := NewWorker(&fakeProducer{err: errors.New("broker down")}, 1, discardLogger(), m)

	w.publish(context.Background(), event(ownerA, KindConsentUpdated, t0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditPublishFailures.WithLabelValues("produce")))
}

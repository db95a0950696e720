package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lexlink/internal/platform/metrics"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/tx"
	"lexlink/pkg/requestcontext"
)

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, Event) error { return f.err }

func (f failingStore) List(context.Context, Query) ([]Event, error) { return nil, f.err }

type recordingSink struct{ events []Event }

func (r *recordingSink) Enqueue(e Event) bool {
	r.events = append(r.events, e)
	return true
}

type PublisherSuite struct {
	suite.Suite
	store   *InMemoryStore
	sink    *recordingSink
	metrics *metrics.Metrics
	pub     *Publisher
	ctx     context.Context
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.sink = &recordingSink{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.pub = NewPublisher(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithSink(s.sink),
	)
	ctx := requestcontext.WithCaller(context.Background(), ownerA, id.RoleLawyer)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.5", firefoxUA)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	s.ctx = requestcontext.WithTime(ctx, t0)
}

func (s *PublisherSuite) TestEmitFillsRequestFields() {
	err := s.pub.Emit(s.ctx, Event{OwnerID: ownerA, Kind: KindAttestationSubmitted, Version: "1.0"})
	s.Require().NoError(err)

	events, err := s.store.List(context.Background(), Query{OwnerID: ownerA})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	e := events[0]
	s.False(e.ID.IsNil())
	s.Equal(t0, e.Timestamp)
	s.Equal("203.0.113.5", e.IP)
	s.Equal(firefoxUA, e.UserAgent)
	s.Equal("req-1", e.RequestID)
	s.True(e.ActorID.IsNil(), "owner acting on own record has no separate actor")
	s.Equal("Firefox 120.0", e.Metadata["browser"])
	s.Contains(e.Metadata["os"], "Linux")
	s.Equal("desktop", e.Metadata["device"])
}

func (s *PublisherSuite) TestEmitRecordsActorForOtherOwner() {
	err := s.pub.Emit(s.ctx, Event{OwnerID: ownerB, Kind: KindAttestationAccessed})
	s.Require().NoError(err)

	events, err := s.store.List(context.Background(), Query{OwnerID: ownerB})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(ownerA, events[0].ActorID)
}

func (s *PublisherSuite) TestEmitKeepsCallerMetadata() {
	err := s.pub.Emit(s.ctx, Event{
		OwnerID:  ownerA,
		Kind:     KindConsentWithdrawn,
		Metadata: map[string]any{"reason": "moving", "os": "custom"},
	})
	s.Require().NoError(err)

	events, _ := s.store.List(context.Background(), Query{OwnerID: ownerA})
	s.Equal("moving", events[0].Metadata["reason"])
	s.Equal("custom", events[0].Metadata["os"])
}

func (s *PublisherSuite) TestEmitRejectsIncompleteEvents() {
	s.Error(s.pub.Emit(s.ctx, Event{Kind: KindConsentUpdated}))
	s.Error(s.pub.Emit(s.ctx, Event{OwnerID: ownerA}))
}

func (s *PublisherSuite) TestEmitSinksImmediatelyOutsideUnitOfWork() {
	s.Require().NoError(s.pub.Emit(s.ctx, Event{OwnerID: ownerA, Kind: KindConsentUpdated}))
	s.Len(s.sink.events, 1)
}

func (s *PublisherSuite) TestEmitSinksOnlyAfterCommit() {
	runner := tx.NewShardedRunner()

	err := runner.RunInTx(s.ctx, ownerA.String(), func(ctx context.Context) error {
		s.Require().NoError(s.pub.Emit(ctx, Event{OwnerID: ownerA, Kind: KindConsentUpdated}))
		s.Empty(s.sink.events, "not published before commit")
		return nil
	})
	s.Require().NoError(err)
	s.Len(s.sink.events, 1)

	err = runner.RunInTx(s.ctx, ownerA.String(), func(ctx context.Context) error {
		s.Require().NoError(s.pub.Emit(ctx, Event{OwnerID: ownerA, Kind: KindTermsAccepted}))
		return errors.New("rolled back")
	})
	s.Require().Error(err)
	s.Len(s.sink.events, 1, "rolled back events are never published")
}

func (s *PublisherSuite) TestEmitFailureIsReturnedAndCounted() {
	pub := NewPublisher(failingStore{err: errors.New("db down")},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithSink(s.sink),
	)

	err := pub.Emit(s.ctx, Event{OwnerID: ownerA, Kind: KindAttestationSubmitted})
	s.Require().Error(err)
	s.Empty(s.sink.events)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AuditAppendFailures.WithLabelValues(string(KindAttestationSubmitted))))
}

func TestEnrichUserAgent(t *testing.T) {
	tests := []struct {
		name   string
		ua     string
		device string
	}{
		{"mobile", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", "mobile"},
		{"bot", "Googlebot/2.1 (+http://www.google.com/bot.html)", "bot"},
		{"desktop", firefoxUA, "desktop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := enrichUserAgent(nil, tt.ua)
			assert.Equal(t, tt.device, out["device"])
		})
	}
}

func TestEmitNormalizesTimestampToUTC(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	owner := id.UserID(uuid.New())
	local := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	require.NoError(t, pub.Emit(context.Background(), Event{OwnerID: owner, Kind: KindConsentUpdated, Timestamp: local}))
	events, err := pub.List(context.Background(), Query{OwnerID: owner})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.UTC, events[0].Timestamp.Location())
	assert.True(t, local.Equal(events[0].Timestamp))
}

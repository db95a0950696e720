//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lexlink/internal/audit"
	"lexlink/internal/platform/kafka"
	id "lexlink/pkg/domain"
	"lexlink/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *ProducerSuite) newTopic() string {
	topic := "lexlink.audit.test." + uuid.NewString()[:8]
	s.Require().NoError(s.redpanda.CreateTopic(context.Background(), topic))
	return topic
}

func (s *ProducerSuite) TestProduceAndPing() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := s.newTopic()

	producer, err := kafka.NewProducer([]string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	defer producer.Close()

	s.Require().NoError(producer.Ping(ctx))
	s.Require().NoError(producer.Produce(ctx, []byte("owner-1"), []byte(`{"kind":"consent_updated"}`)))

	records, err := s.redpanda.Consume(ctx, topic, 1)
	s.Require().NoError(err)
	s.Equal("owner-1", string(records[0].Key))
	s.JSONEq(`{"kind":"consent_updated"}`, string(records[0].Value))
}

func (s *ProducerSuite) TestAuditWorkerFanOut() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := s.newTopic()

	producer, err := kafka.NewProducer([]string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	defer producer.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := audit.NewWorker(producer, 8, logger, nil)
	publisher := audit.NewPublisher(audit.NewInMemoryStore(), audit.WithLogger(logger), audit.WithSink(worker))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- worker.Run(runCtx) }()

	owner := id.UserID(uuid.New())
	s.Require().NoError(publisher.Emit(ctx, audit.Event{OwnerID: owner, Kind: audit.KindMarketingOptedIn}))

	records, err := s.redpanda.Consume(ctx, topic, 1)
	s.Require().NoError(err)
	s.Equal(owner.String(), string(records[0].Key))

	var event audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &event))
	s.Equal(audit.KindMarketingOptedIn, event.Kind)
	s.Equal(owner, event.OwnerID)

	stop()
	s.ErrorIs(<-done, context.Canceled)
}

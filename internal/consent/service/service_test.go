package service

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
	"github.com/stretchr/testify/suite"

	"lexlink/internal/audit"
	"lexlink/internal/consent/models"
	"lexlink/internal/consent/store"
	"lexlink/internal/platform/metrics"
	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
	"lexlink/pkg/platform/tx"
	"lexlink/pkg/requestcontext"
)

// toggleAuditStore wraps the memory ledger and fails appends on demand.
type toggleAuditStore struct {
	*audit.InMemoryStore
	fail bool
}

func (t *toggleAuditStore) Append(ctx context.Context, e audit.Event) error {
	if t.fail {
		return errors.New("ledger unavailable")
	}
	return t.InMemoryStore.Append(ctx, e)
}

type ConsentServiceSuite struct {
	suite.Suite
	store      *store.InMemoryStore
	auditStore *toggleAuditStore
	metrics    *metrics.Metrics
	service    *Service
	user       id.UserID
	now        time.Time
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.auditStore = &toggleAuditStore{InMemoryStore: audit.NewInMemoryStore()}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.user = id.UserID(uuid.New())
	s.now = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	s.service = s.newService(false)
}

func (s *ConsentServiceSuite) newService(regulated bool) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := audit.NewPublisher(s.auditStore, audit.WithLogger(logger), audit.WithMetrics(s.metrics))
	svc, err := New(s.store, tx.NewShardedRunner(), publisher,
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithRegulatedMode(regulated),
		WithPolicyVersion("2.0"),
	)
	s.Require().NoError(err)
	return svc
}

// ctx returns a caller context whose clock is offset minutes after s.now.
func (s *ConsentServiceSuite) ctx(offset int) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), s.user, id.RoleClient)
	ctx = requestcontext.WithClientMetadata(ctx, "198.51.100.4", "Mozilla/5.0")
	return requestcontext.WithTime(ctx, s.now.Add(time.Duration(offset)*time.Minute))
}

func (s *ConsentServiceSuite) grantRequired() {
	_, err := s.service.Update(s.ctx(0), map[string]any{"terms": true, "privacy": true, "dataProcessing": true})
	s.Require().NoError(err)
}

// kinds lists the user's events oldest first.
func (s *ConsentServiceSuite) kinds() []audit.Kind {
	events, err := s.auditStore.List(context.Background(), audit.Query{OwnerID: s.user})
	s.Require().NoError(err)
	out := make([]audit.Kind, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i].Kind)
	}
	return out
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ConsentServiceSuite) TestNew() {
	publisher := audit.NewPublisher(audit.NewInMemoryStore())
	_, err := New(nil, tx.NewShardedRunner(), publisher)
	s.ErrorContains(err, "consent store is required")
	_, err = New(store.NewInMemoryStore(), nil, publisher)
	s.ErrorContains(err, "transaction runner is required")
	_, err = New(store.NewInMemoryStore(), tx.NewShardedRunner(), nil)
	s.ErrorContains(err, "audit publisher is required")
}

// =============================================================================
// Update Tests
// =============================================================================

func (s *ConsentServiceSuite) TestUpdate() {
	s.Run("requires identity", func() {
		_, err := s.service.Update(context.Background(), map[string]any{"marketing": true})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("first update starts from nothing granted", func() {
		record, err := s.service.Update(s.ctx(0), map[string]any{"terms": true, "privacy": true})
		s.Require().NoError(err)
		s.True(record.Terms)
		s.True(record.Privacy)
		s.False(record.DataProcessing)
		s.Equal("2.0", record.Version)
		s.Equal(s.now, record.UpdatedAt)

		s.Equal([]audit.Kind{
			audit.KindConsentUpdated,
			audit.KindTermsAccepted,
			audit.KindPrivacyAccepted,
		}, s.kinds())
	})
}

func (s *ConsentServiceSuite) TestMarketingOptInThenOptOut() {
	s.grantRequired()

	_, err := s.service.Update(s.ctx(1), map[string]any{"marketing": true})
	s.Require().NoError(err)
	record, err := s.service.Update(s.ctx(2), map[string]any{"marketing": false, "version": "2.1"})
	s.Require().NoError(err)
	s.False(record.Marketing)
	s.True(record.Terms, "untouched grants survive a partial update")
	s.Equal("2.1", record.Version)

	events, err := s.service.AuditLog(s.ctx(3), models.AuditFilter{})
	s.Require().NoError(err)

	var marketing []audit.Kind
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Timestamp.Before(s.now.Add(time.Minute)) {
			continue
		}
		s.NotContains([]audit.Kind{
			audit.KindTermsAccepted, audit.KindPrivacyAccepted, audit.KindDataProcessingAccepted,
			audit.KindTermsRevoked, audit.KindPrivacyRevoked, audit.KindDataProcessingRevoked,
		}, e.Kind)
		if e.Kind == audit.KindMarketingOptedIn || e.Kind == audit.KindMarketingOptedOut {
			marketing = append(marketing, e.Kind)
			s.Equal("marketing", e.Metadata["field"])
		}
	}
	s.Equal([]audit.Kind{audit.KindMarketingOptedIn, audit.KindMarketingOptedOut}, marketing)
}

func (s *ConsentServiceSuite) TestUpdateUnchangedEmitsOnlyCoarseEvent() {
	s.grantRequired()
	before := len(s.kinds())

	_, err := s.service.Update(s.ctx(1), map[string]any{"terms": true})
	s.Require().NoError(err)

	kinds := s.kinds()
	s.Require().Len(kinds, before+1)
	s.Equal(audit.KindConsentUpdated, kinds[len(kinds)-1])
}

func (s *ConsentServiceSuite) TestUpdateRejectsRequiredFalse() {
	s.grantRequired()

	_, err := s.service.Update(s.ctx(1), map[string]any{"privacy": false})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	record, err := s.service.Get(s.ctx(2))
	s.Require().NoError(err)
	s.True(record.Privacy)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ValidationFailures.WithLabelValues("consent")))
}

func (s *ConsentServiceSuite) TestUpdateAuditFailureModes() {
	s.Run("default mode keeps the write", func() {
		s.auditStore.fail = true
		record, err := s.service.Update(s.ctx(0), map[string]any{"marketing": true})
		s.Require().NoError(err)
		s.True(record.Marketing)
		s.auditStore.fail = false
	})

	s.Run("regulated mode rolls back", func() {
		regulated := s.newService(true)
		s.auditStore.fail = true
		_, err := regulated.Update(s.ctx(1), map[string]any{"marketing": false})
		s.Require().Error(err)
		s.auditStore.fail = false

		record, err := regulated.Get(s.ctx(2))
		s.Require().NoError(err)
		s.True(record.Marketing)
	})
}

// =============================================================================
// Withdraw Tests
// =============================================================================

func (s *ConsentServiceSuite) TestWithdrawRequiredIsBlockedAndAudited() {
	s.grantRequired()
	before := len(s.kinds())

	_, err := s.service.Withdraw(s.ctx(1), models.WithdrawRequest{Types: []string{"terms"}, Reason: "changed my mind"})
	s.True(dErrors.HasCode(err, dErrors.CodeRequiredConsent))

	kinds := s.kinds()
	s.Require().Len(kinds, before+1)
	s.Equal(audit.KindBlockedRequiredWithdrawal, kinds[len(kinds)-1])

	record, err := s.service.Get(s.ctx(2))
	s.Require().NoError(err)
	s.True(record.Terms)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BlockedWithdrawals))
}

func (s *ConsentServiceSuite) TestWithdrawMixedTypesIsBlockedWholesale() {
	s.grantRequired()
	_, err := s.service.Update(s.ctx(1), map[string]any{"marketing": true})
	s.Require().NoError(err)

	_, err = s.service.Withdraw(s.ctx(2), models.WithdrawRequest{Types: []string{"marketing", "privacy"}})
	s.True(dErrors.HasCode(err, dErrors.CodeRequiredConsent))

	record, err := s.service.Get(s.ctx(3))
	s.Require().NoError(err)
	s.True(record.Marketing)
}

func (s *ConsentServiceSuite) TestWithdrawRequiredWithUnknownTypeIsStillAudited() {
	s.grantRequired()
	before := len(s.kinds())

	_, err := s.service.Withdraw(s.ctx(1), models.WithdrawRequest{Types: []string{"terms", "newsletters"}})
	s.True(dErrors.HasCode(err, dErrors.CodeRequiredConsent))

	kinds := s.kinds()
	s.Require().Len(kinds, before+1)
	s.Equal(audit.KindBlockedRequiredWithdrawal, kinds[len(kinds)-1])

	events, err := s.service.AuditLog(s.ctx(2), models.AuditFilter{EventType: "blocked_required_consent_withdrawal"})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal([]string{"terms"}, events[0].Metadata["blockedTypes"])
	s.Equal([]string{"terms", "newsletters"}, events[0].Metadata["requestedTypes"])
}

func (s *ConsentServiceSuite) TestWithdrawBlockedEvenWithoutRecord() {
	_, err := s.service.Withdraw(s.ctx(0), models.WithdrawRequest{Types: []string{"dataProcessing"}})
	s.True(dErrors.HasCode(err, dErrors.CodeRequiredConsent))
	s.Equal([]audit.Kind{audit.KindBlockedRequiredWithdrawal}, s.kinds())
}

func (s *ConsentServiceSuite) TestWithdrawMarketing() {
	s.grantRequired()
	_, err := s.service.Update(s.ctx(1), map[string]any{"marketing": true})
	s.Require().NoError(err)

	record, err := s.service.Withdraw(s.ctx(2), models.WithdrawRequest{Types: []string{"marketing"}, Reason: "too many emails"})
	s.Require().NoError(err)
	s.False(record.Marketing)
	s.True(record.IsValid())

	kinds := s.kinds()
	s.Equal([]audit.Kind{audit.KindConsentWithdrawn, audit.KindMarketingOptedOut}, kinds[len(kinds)-2:])

	events, err := s.service.AuditLog(s.ctx(3), models.AuditFilter{EventType: "consent_withdrawn"})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("too many emails", events[0].Metadata["reason"])
}

func (s *ConsentServiceSuite) TestWithdrawErrors() {
	s.Run("no record", func() {
		_, err := s.service.Withdraw(s.ctx(0), models.WithdrawRequest{Types: []string{"marketing"}})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown type", func() {
		_, err := s.service.Withdraw(s.ctx(0), models.WithdrawRequest{Types: []string{"cookies"}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty types", func() {
		_, err := s.service.Withdraw(s.ctx(0), models.WithdrawRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Reader Tests
// =============================================================================

func (s *ConsentServiceSuite) TestGetAndStatus() {
	record, err := s.service.Get(s.ctx(0))
	s.Require().NoError(err)
	s.Nil(record)

	status, err := s.service.Status(s.ctx(0))
	s.Require().NoError(err)
	s.False(status.IsValid)
	s.False(status.HasConsent)

	s.grantRequired()
	status, err = s.service.Status(s.ctx(1))
	s.Require().NoError(err)
	s.True(status.IsValid)
	s.True(status.HasConsent)
	s.Equal("2.0", status.Version)
}

func (s *ConsentServiceSuite) TestAuditLog() {
	s.grantRequired()
	_, err := s.service.Update(s.ctx(5), map[string]any{"marketing": true})
	s.Require().NoError(err)

	s.Run("filters by event type", func() {
		events, err := s.service.AuditLog(s.ctx(6), models.AuditFilter{EventType: "marketing_opted_in"})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.KindMarketingOptedIn, events[0].Kind)
	})

	s.Run("time range and limit", func() {
		from := s.now.Add(time.Minute)
		events, err := s.service.AuditLog(s.ctx(6), models.AuditFilter{From: &from, Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.True(events[0].Timestamp.Equal(s.now.Add(5 * time.Minute)))
	})

	s.Run("unknown event type", func() {
		_, err := s.service.AuditLog(s.ctx(6), models.AuditFilter{EventType: "attestation_submitted"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("bad range", func() {
		from, to := s.now.Add(time.Hour), s.now
		_, err := s.service.AuditLog(s.ctx(6), models.AuditFilter{From: &from, To: &to})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("empty log is an empty slice", func() {
		ctx := requestcontext.WithCaller(context.Background(), id.UserID(uuid.New()), id.RoleClient)
		events, err := s.service.AuditLog(ctx, models.AuditFilter{})
		s.Require().NoError(err)
		s.NotNil(events)
		s.Empty(events)
	})
}

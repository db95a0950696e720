package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lexlink/internal/access"
	"lexlink/internal/audit"
	"lexlink/internal/consent/models"
	"lexlink/internal/platform/metrics"
	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
	"lexlink/pkg/requestcontext"
)

// Store persists the consent snapshot of each user.
type Store interface {
	FindByUser(ctx context.Context, user id.UserID) (*models.Record, error)
	FindByUserForUpdate(ctx context.Context, user id.UserID) (*models.Record, error)
	Save(ctx context.Context, user id.UserID, record models.Record) error
}

// AuditPublisher appends to and reads from the audit ledger.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

// Service manages the caller's consent grants.
type Service struct {
	store         Store
	runner        tx.Runner
	auditor       AuditPublisher
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	regulated     bool
	policyVersion string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithRegulatedMode makes audit appends part of the write.
func WithRegulatedMode(regulated bool) Option {
	return func(s *Service) {
		s.regulated = regulated
	}
}

// WithPolicyVersion sets the version stamped when an update names none.
func WithPolicyVersion(version string) Option {
	return func(s *Service) {
		s.policyVersion = version
	}
}

func New(store Store, runner tx.Runner, auditor AuditPublisher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("consent store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit publisher is required")
	}

	svc := &Service{
		store:         store,
		runner:        runner,
		auditor:       auditor,
		logger:        slog.Default(),
		tracer:        otel.Tracer("lexlink/consent"),
		policyVersion: "1.0",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Get returns the caller's consent, or nil when none was ever given.
func (s *Service) Get(ctx context.Context) (*models.Record, error) {
	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, caller.UserID)
}

// Status reports whether all required grants are in place.
func (s *Service) Status(ctx context.Context) (*models.Status, error) {
	record, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &models.Status{}, nil
	}
	updatedAt := record.UpdatedAt
	return &models.Status{
		IsValid:    record.IsValid(),
		HasConsent: true,
		Version:    record.Version,
		UpdatedAt:  &updatedAt,
	}, nil
}

// Update merges the supplied grants onto the caller's consent. A first
// update starts from all grants off. One consent_updated event plus one
// event per changed grant is appended.
func (s *Service) Update(ctx context.Context, payload map[string]any) (record *models.Record, err error) {
	ctx, span := s.tracer.Start(ctx, "consent.Update")
	defer func() { endSpan(span, err) }()

	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user_id", caller.UserID.String()))

	update, err := models.ValidateUpdate(payload)
	if err != nil {
		s.metrics.IncValidationFailure("consent")
		s.logger.WarnContext(ctx, "consent validation failed",
			"user_id", caller.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	var (
		next   models.Record
		events []audit.Event
	)
	err = s.runner.RunInTx(ctx, caller.UserID.String(), func(ctx context.Context) error {
		previous, err := s.store.FindByUserForUpdate(ctx, caller.UserID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
		}
		var base models.Record
		if previous != nil {
			base = *previous
		}

		next = update.Apply(base)
		next.Version = update.Version
		if next.Version == "" {
			next.Version = s.policyVersion
		}
		next.UpdatedAt = requestcontext.Now(ctx).UTC()

		if err := s.store.Save(ctx, caller.UserID, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
		}
		events = updateEvents(caller.UserID, previous, next)
		if s.regulated {
			return s.emitAll(ctx, events)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "consent update failed",
			"user_id", caller.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	if !s.regulated {
		s.emitBestEffort(ctx, events...)
	}

	s.metrics.IncConsentChange("update")
	s.logger.InfoContext(ctx, "consent updated",
		"user_id", caller.UserID.String(),
		"changes", len(events)-1,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &next, nil
}

// Withdraw revokes optional grants. Asking for a required grant is audited
// as a blocked attempt and rejected without changing anything.
func (s *Service) Withdraw(ctx context.Context, req models.WithdrawRequest) (record *models.Record, err error) {
	ctx, span := s.tracer.Start(ctx, "consent.Withdraw")
	defer func() { endSpan(span, err) }()

	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	types := req.ConsentTypes()
	if blocked := requiredTypes(types); len(blocked) > 0 {
		return nil, s.blockWithdrawal(ctx, caller, blocked, types, req.AuditReason())
	}
	if err := req.Validate(); err != nil {
		s.metrics.IncValidationFailure("consent_withdrawal")
		return nil, err
	}

	var events []audit.Event
	err = s.runner.RunInTx(ctx, caller.UserID.String(), func(ctx context.Context) error {
		previous, err := s.store.FindByUserForUpdate(ctx, caller.UserID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no consent on record")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
		}

		next := *previous
		for _, t := range types {
			if t == models.TypeMarketing {
				next.Marketing = false
			}
		}
		next.UpdatedAt = requestcontext.Now(ctx).UTC()
		if err := s.store.Save(ctx, caller.UserID, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
		}
		record = &next

		events = withdrawalEvents(caller.UserID, *previous, next, types, req.Reason)
		if s.regulated {
			return s.emitAll(ctx, events)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !s.regulated {
		s.emitBestEffort(ctx, events...)
	}

	s.metrics.IncConsentChange("withdraw")
	s.logger.InfoContext(ctx, "consent withdrawn",
		"user_id", caller.UserID.String(),
		"types", req.Types,
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

// AuditLog returns the caller's consent events, newest first.
func (s *Service) AuditLog(ctx context.Context, filter models.AuditFilter) ([]audit.Event, error) {
	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Limit < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from must not be after to")
	}
	kinds := audit.ConsentKinds()
	if filter.EventType != "" {
		kind, err := audit.ParseConsentKind(filter.EventType)
		if err != nil {
			return nil, err
		}
		kinds = []audit.Kind{kind}
	}

	events, err := s.auditor.List(ctx, audit.Query{
		OwnerID: caller.UserID,
		Kinds:   kinds,
		From:    filter.From,
		To:      filter.To,
		Limit:   filter.Limit,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

// blockWithdrawal appends the blocked attempt before returning the
// rejection. The rejection stands even when the append fails.
func (s *Service) blockWithdrawal(ctx context.Context, caller access.Caller, blocked, requested []models.Type, reason string) error {
	s.metrics.IncBlockedWithdrawal()
	event := audit.Event{
		OwnerID: caller.UserID,
		Kind:    audit.KindBlockedRequiredWithdrawal,
		Metadata: map[string]any{
			"blockedTypes":   typeNames(blocked),
			"requestedTypes": typeNames(requested),
		},
	}
	if reason != "" {
		event.Metadata["reason"] = reason
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record blocked consent withdrawal",
			"user_id", caller.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	s.logger.WarnContext(ctx, "blocked withdrawal of required consent",
		"user_id", caller.UserID.String(),
		"types", typeNames(blocked),
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeRequiredConsent,
		"required consent cannot be withdrawn: "+joinTypes(blocked))
}

func (s *Service) find(ctx context.Context, user id.UserID) (*models.Record, error) {
	record, err := s.store.FindByUser(ctx, user)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	return record, nil
}

func (s *Service) emitAll(ctx context.Context, events []audit.Event) error {
	for _, e := range events {
		if err := s.auditor.Emit(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record consent audit event")
		}
	}
	return nil
}

func (s *Service) emitBestEffort(ctx context.Context, events ...audit.Event) {
	for _, e := range events {
		if err := s.auditor.Emit(ctx, e); err != nil {
			s.logger.ErrorContext(ctx, "audit append failed, operation kept",
				"kind", e.Kind,
				"owner_id", e.OwnerID.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

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
	"lexlink/internal/attestation/models"
	"lexlink/internal/audit"
	"lexlink/internal/platform/metrics"
	"lexlink/internal/verification"
	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
	"lexlink/pkg/platform/sentinel"
	"lexlink/pkg/platform/tx"
	"lexlink/pkg/requestcontext"
)

// Store persists one attestation per owner.
type Store interface {
	FindByOwner(ctx context.Context, owner id.UserID) (*models.Record, error)
	FindByOwnerForUpdate(ctx context.Context, owner id.UserID) (*models.Record, error)
	Upsert(ctx context.Context, record *models.Record) (inserted bool, err error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Record, int, error)
}

// AuditPublisher appends to and reads from the audit ledger.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Service runs the attestation workflow: validate, verify, upsert, audit.
type Service struct {
	store          Store
	runner         tx.Runner
	auditor        AuditPublisher
	verifier       verification.Verifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	regulated      bool
	defaultVersion string
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

// WithRegulatedMode makes audit appends part of the write: a failed append
// rolls the submission back.
func WithRegulatedMode(regulated bool) Option {
	return func(s *Service) {
		s.regulated = regulated
	}
}

// WithDefaultVersion sets the version stored when a submission omits one.
func WithDefaultVersion(version string) Option {
	return func(s *Service) {
		s.defaultVersion = version
	}
}

func New(store Store, runner tx.Runner, auditor AuditPublisher, verifier verification.Verifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("attestation store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit publisher is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}

	svc := &Service{
		store:          store,
		runner:         runner,
		auditor:        auditor,
		verifier:       verifier,
		logger:         slog.Default(),
		tracer:         otel.Tracer("lexlink/attestation"),
		defaultVersion: "1.0",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit validates payload and upserts the caller's attestation. Only lawyers
// may submit.
func (s *Service) Submit(ctx context.Context, payload map[string]any) (result *models.SubmitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "attestation.Submit")
	defer func() { endSpan(span, err) }()

	caller, err := s.authorizeRole(ctx, id.RoleLawyer)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("owner_id", caller.UserID.String()))

	sub, err := models.ValidateSubmission(payload)
	if err != nil {
		s.metrics.IncValidationFailure("attestation")
		s.logger.WarnContext(ctx, "attestation validation failed",
			"user_id", caller.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	if sub.Version == "" {
		sub.Version = s.defaultVersion
	}

	verified := s.verify(ctx, caller.UserID, sub)
	now := requestcontext.Now(ctx).UTC()
	record := &models.Record{
		OwnerID:      caller.UserID,
		LegalName:    sub.LegalName,
		BarNumber:    sub.BarNumber,
		Affirmations: sub.Affirmations,
		Verified:     verified,
		Version:      sub.Version,
		SubmittedAt:  now,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		event    audit.Event
		isUpdate bool
	)
	err = s.runner.RunInTx(ctx, caller.UserID.String(), func(ctx context.Context) error {
		previous, err := s.store.FindByOwnerForUpdate(ctx, caller.UserID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attestation")
		}
		inserted, err := s.store.Upsert(ctx, record)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attestation")
		}
		isUpdate = !inserted
		event = submissionEvent(record, isUpdate, previous)
		if s.regulated {
			if err := s.auditor.Emit(ctx, event); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attestation audit event")
			}
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "attestation submission failed",
			"user_id", caller.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	if !s.regulated {
		s.emitBestEffort(ctx, event)
	}

	s.metrics.IncAttestationSubmission(isUpdate)
	s.logger.InfoContext(ctx, "attestation saved",
		"user_id", caller.UserID.String(),
		"is_update", isUpdate,
		"verified", verified,
		"request_id", requestcontext.RequestID(ctx),
	)

	message := "Attestation submitted successfully"
	if isUpdate {
		message = "Attestation updated successfully"
	}
	return &models.SubmitResult{Success: true, IsUpdate: isUpdate, Message: message}, nil
}

// GetMine returns the caller's record, or nil when none exists.
func (s *Service) GetMine(ctx context.Context) (*models.Record, error) {
	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, caller.UserID)
}

// Status reports whether the caller holds a valid attestation.
func (s *Service) Status(ctx context.Context) (*models.Status, error) {
	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	record, err := s.find(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &models.Status{IsValid: false, HasAttestation: false}, nil
	}
	submittedAt := record.SubmittedAt
	verified := record.Verified
	return &models.Status{
		IsValid:        record.IsValid(),
		HasAttestation: true,
		SubmittedAt:    &submittedAt,
		Verified:       &verified,
	}, nil
}

// AuditLog returns the caller's attestation events, newest first.
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
	events, err := s.auditor.List(ctx, audit.Query{
		OwnerID: caller.UserID,
		Kinds:   audit.AttestationKinds(),
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

// GetByOwner returns owner's record to the owner or an admin. Admin reads of
// someone else's record are audited.
func (s *Service) GetByOwner(ctx context.Context, owner id.UserID) (record *models.Record, err error) {
	ctx, span := s.tracer.Start(ctx, "attestation.GetByOwner")
	defer func() { endSpan(span, err) }()

	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, owner); err != nil {
		s.metrics.IncAccessDenied("not_owner")
		s.logger.WarnContext(ctx, "attestation access denied",
			"user_id", caller.UserID.String(),
			"owner_id", owner.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	record, err = s.find(ctx, owner)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	if caller.UserID != owner {
		s.emitBestEffort(ctx, audit.Event{
			OwnerID:  owner,
			Kind:     audit.KindAttestationAccessed,
			Version:  record.Version,
			ActorID:  caller.UserID,
			Metadata: map[string]any{"actorRole": caller.Role.String()},
		})
	}
	return record, nil
}

// List pages over all attestations. Admin only.
func (s *Service) List(ctx context.Context, filter models.ListFilter) (*models.ListResult, error) {
	if _, err := s.authorizeRole(ctx, id.RoleAdmin); err != nil {
		return nil, err
	}
	if filter.Offset < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "offset must not be negative")
	}
	switch {
	case filter.Limit < 0:
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	case filter.Limit == 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}

	records, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attestations")
	}
	return &models.ListResult{
		Records: records,
		Total:   total,
		HasMore: filter.Offset+len(records) < total,
	}, nil
}

func (s *Service) find(ctx context.Context, owner id.UserID) (*models.Record, error) {
	record, err := s.store.FindByOwner(ctx, owner)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attestation")
	}
	return record, nil
}

func (s *Service) authorizeRole(ctx context.Context, role id.Role) (access.Caller, error) {
	caller, err := access.CallerFromContext(ctx)
	if err != nil {
		return access.Caller{}, err
	}
	if err := access.RequireRole(caller, role); err != nil {
		s.metrics.IncAccessDenied("role")
		s.logger.WarnContext(ctx, "caller lacks required role",
			"user_id", caller.UserID.String(),
			"role", caller.Role.String(),
			"required_role", role.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return access.Caller{}, err
	}
	return caller, nil
}

// verify never fails a submission: a registry error stores verified=false.
func (s *Service) verify(ctx context.Context, owner id.UserID, sub models.Submission) bool {
	result, err := s.verifier.Verify(ctx, verification.Request{
		OwnerID:   owner,
		LegalName: sub.LegalName,
		BarNumber: sub.BarNumber,
	})
	if err != nil {
		s.metrics.IncVerificationLookup("error")
		s.logger.WarnContext(ctx, "bar verification failed, storing as unverified",
			"user_id", owner.String(),
			"error", err,
		)
		return false
	}
	return result.Verified
}

func (s *Service) emitBestEffort(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed, operation kept",
			"kind", event.Kind,
			"owner_id", event.OwnerID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// submissionEvent describes the write. previous may be nil on an update when
// a concurrent insert won the race.
func submissionEvent(record *models.Record, isUpdate bool, previous *models.Record) audit.Event {
	event := audit.Event{
		OwnerID: record.OwnerID,
		Kind:    audit.KindAttestationSubmitted,
		Version: record.Version,
		Metadata: map[string]any{
			"barNumber": record.BarNumber,
			"verified":  record.Verified,
		},
	}
	if !isUpdate {
		return event
	}
	event.Kind = audit.KindAttestationUpdated
	if previous != nil {
		event.Metadata["previousVersion"] = previous.Version
		event.Metadata["previousBarNumber"] = previous.BarNumber
		event.Metadata["previousVerified"] = previous.Verified
		event.Metadata["previousSubmittedAt"] = previous.SubmittedAt
	}
	return event
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

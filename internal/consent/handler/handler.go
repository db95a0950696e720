package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lexlink/internal/audit"
	"lexlink/internal/consent/models"
	"lexlink/pkg/platform/httputil"
	"lexlink/pkg/requestcontext"
)

// Service defines the consent operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context) (*models.Record, error)
	Status(ctx context.Context) (*models.Status, error)
	Update(ctx context.Context, payload map[string]any) (*models.Record, error)
	Withdraw(ctx context.Context, req models.WithdrawRequest) (*models.Record, error)
	AuditLog(ctx context.Context, filter models.AuditFilter) ([]audit.Event, error)
}

// Handler handles consent endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

// New creates a new consent Handler.
func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
	}
}

// Register registers the consent routes. Callers mount it behind
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/consent", h.handleGetConsent)
	r.Patch("/consent", h.handleUpdateConsent)
	r.Get("/consent/status", h.handleConsentStatus)
	r.Post("/consent/withdraw", h.handleWithdrawConsent)
	r.Get("/consent/audit", h.handleConsentAudit)
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.consent.Get(ctx)
	if err != nil {
		h.fail(ctx, w, "get consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleConsentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.consent.Status(ctx)
	if err != nil {
		h.fail(ctx, w, "consent status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleUpdateConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, ok := httputil.DecodePayload(w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.consent.Update(ctx, payload)
	if err != nil {
		h.fail(ctx, w, "update consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Validation happens in the service so blocked attempts are audited.
	req, ok := httputil.DecodeJSON[models.WithdrawRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.consent.Withdraw(ctx, *req)
	if err != nil {
		h.fail(ctx, w, "withdraw consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleConsentAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := models.AuditFilter{EventType: r.URL.Query().Get("eventType")}
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if limit != nil {
		filter.Limit = *limit
	}
	if filter.From, err = httputil.QueryTime(r, "from"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.To, err = httputil.QueryTime(r, "to"); err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.consent.AuditLog(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "consent audit log", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"user_id", requestcontext.UserID(ctx).String(),
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

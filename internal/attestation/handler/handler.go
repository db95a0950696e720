package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lexlink/internal/attestation/models"
	"lexlink/internal/audit"
	id "lexlink/pkg/domain"
	"lexlink/pkg/platform/httputil"
	"lexlink/pkg/requestcontext"
)

// Service defines the attestation operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, payload map[string]any) (*models.SubmitResult, error)
	GetMine(ctx context.Context) (*models.Record, error)
	Status(ctx context.Context) (*models.Status, error)
	AuditLog(ctx context.Context, filter models.AuditFilter) ([]audit.Event, error)
	GetByOwner(ctx context.Context, owner id.UserID) (*models.Record, error)
	List(ctx context.Context, filter models.ListFilter) (*models.ListResult, error)
}

// Handler handles attestation endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new attestation Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers the attestation routes. Callers mount it behind
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/attestation", h.HandleSubmit)
	r.Get("/attestation", h.HandleGetMine)
	r.Get("/attestation/status", h.HandleStatus)
	r.Get("/attestation/audit", h.HandleAuditLog)
	r.Get("/attestations", h.HandleList)
	r.Get("/attestations/{ownerID}", h.HandleGetByOwner)
}

// HandleSubmit creates or replaces the caller's attestation.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	payload, ok := httputil.DecodePayload(w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Submit(ctx, payload)
	if err != nil {
		h.writeServiceError(ctx, w, "submit attestation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleGetMine returns the caller's attestation or null.
func (h *Handler) HandleGetMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.GetMine(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "get attestation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.Status(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "attestation status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleAuditLog accepts limit, from and to (RFC3339) query parameters.
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter models.AuditFilter
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

	events, err := h.service.AuditLog(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "attestation audit log", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) HandleGetByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, err := id.ParseUserID(chi.URLParam(r, "ownerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.GetByOwner(ctx, owner)
	if err != nil {
		h.writeServiceError(ctx, w, "get attestation by owner", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleList accepts limit, offset and verified query parameters.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter models.ListFilter
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if limit != nil {
		filter.Limit = *limit
	}
	offset, err := httputil.QueryInt(r, "offset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if offset != nil {
		filter.Offset = *offset
	}
	if filter.Verified, err = httputil.QueryBool(r, "verified"); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "list attestations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

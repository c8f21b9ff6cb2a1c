// Package handler exposes the verification pipeline over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"identrisk/internal/verification/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/platform/httputil"
	"identrisk/pkg/requestcontext"
)

// Service is the orchestrator surface the handler needs.
type Service interface {
	Start(ctx context.Context, userID, verificationType string) (*models.Verification, error)
	SubmitDocument(ctx context.Context, id models.VerificationID, image []byte) (*models.Verification, error)
	SubmitSelfie(ctx context.Context, id models.VerificationID, selfie []byte) (*models.Verification, error)
	Get(ctx context.Context, id models.VerificationID) (*models.Verification, error)
	LatestForUser(ctx context.Context, userID string) (*models.Verification, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verifications", h.HandleStart)
	r.Post("/verifications/{id}/document", h.HandleSubmitDocument)
	r.Post("/verifications/{id}/selfie", h.HandleSubmitSelfie)
	r.Get("/verifications/{id}", h.HandleGet)
	r.Get("/users/{userId}/verifications/latest", h.HandleLatestForUser)
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.Start(ctx, req.UserID, req.VerificationType)
	if err != nil {
		h.logFailure(ctx, "start verification failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StartResponse{
		VerificationID: v.ID.String(),
		Status:         string(v.Status),
	})
}

func (h *Handler) HandleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := models.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ImageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.SubmitDocument(ctx, id, req.Image())
	if err != nil {
		h.logFailure(ctx, "document submission failed", requestID, err, "verification_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(v))
}

func (h *Handler) HandleSubmitSelfie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := models.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ImageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.SubmitSelfie(ctx, id, req.Image())
	if err != nil {
		h.logFailure(ctx, "selfie submission failed", requestID, err, "verification_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSelfieResponse(v))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := models.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Get(ctx, id)
	if err != nil {
		h.logFailure(ctx, "get verification failed", requestcontext.RequestID(ctx), err, "verification_id", id.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(v))
}

func (h *Handler) HandleLatestForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := h.service.LatestForUser(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		h.logFailure(ctx, "latest verification lookup failed", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(v))
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error, attrs ...any) {
	args := append([]any{"request_id", requestID, "error", err}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, args...)
	default:
		h.logger.WarnContext(ctx, msg, args...)
	}
}

// Package handler exposes transaction scoring over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"identrisk/internal/fraud/models"
	"identrisk/internal/fraud/service"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/platform/httputil"
	"identrisk/pkg/requestcontext"
)

type Service interface {
	Score(ctx context.Context, txn *models.Transaction) (*models.FraudScore, error)
	ScoreBatch(ctx context.Context, txns []*models.Transaction) (*service.BatchResult, error)
	Get(ctx context.Context, transactionID string) (*models.FraudScore, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/fraud/score", h.HandleScore)
	r.Post("/fraud/score/batch", h.HandleScoreBatch)
	r.Get("/fraud/score/{transactionId}", h.HandleGet)
}

func (h *Handler) HandleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ScoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	score, err := h.service.Score(ctx, req.Transaction())
	if err != nil {
		h.logFailure(ctx, "transaction scoring failed", requestID, err, "transaction_id", req.TransactionID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScoreResponse(score))
}

// HandleScoreBatch answers 200 even when some items failed; they are listed
// under failures with their index.
func (h *Handler) HandleScoreBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchScoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.ScoreBatch(ctx, req.Items())
	if err != nil {
		h.logFailure(ctx, "batch scoring failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchResponse(result))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txnID := chi.URLParam(r, "transactionId")
	score, err := h.service.Get(ctx, txnID)
	if err != nil {
		h.logFailure(ctx, "fraud score lookup failed", requestcontext.RequestID(ctx), err, "transaction_id", txnID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScoreResponse(score))
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error, attrs ...any) {
	args := append([]any{"request_id", requestID, "error", err}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, args...)
	default:
		h.logger.WarnContext(ctx, msg, args...)
	}
}

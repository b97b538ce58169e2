package handler

import (
	"log/slog"
	"net/http"

	"github.com/dogevents/platform/internal/auth"
	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/service"
)

// RefundHandler handles refund creation and refund callbacks.
type RefundHandler struct {
	refunds *service.RefundService
	logger  *slog.Logger
}

// NewRefundHandler creates a new RefundHandler.
func NewRefundHandler(refunds *service.RefundService, logger *slog.Logger) *RefundHandler {
	return &RefundHandler{refunds: refunds, logger: logger}
}

type createRefundRequest struct {
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
}

// Create handles POST /refunds (admin only).
func (h *RefundHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRefundRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.TransactionID == "" {
		RespondError(w, domain.ErrValidation("transactionId is required"))
		return
	}

	result, err := h.refunds.CreateRefund(r.Context(), req.TransactionID, req.Amount, auth.ActorName(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Success handles GET /refunds/success, the gateway's server-to-server
// refund success callback.
func (h *RefundHandler) Success(w http.ResponseWriter, r *http.Request) {
	if err := h.refunds.HandleRefundSuccess(r.Context(), r.URL.Query()); err != nil {
		h.logger.Error("refund success callback failed", "error", err)
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

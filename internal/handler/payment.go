package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dogevents/platform/internal/auth"
	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/service"
)

// PaymentHandler handles payment creation, gateway callbacks and the
// browser-facing verification endpoint.
type PaymentHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

type createPaymentRequest struct {
	EventID        string `json:"eventId"`
	RegistrationID string `json:"registrationId"`
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.EventID == "" || req.RegistrationID == "" {
		RespondError(w, domain.ErrValidation("eventId and registrationId are required"))
		return
	}

	result, err := h.payments.CreatePayment(r.Context(), req.EventID, req.RegistrationID, auth.ActorName(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Success handles GET /payments/success, the gateway's server-to-server
// success callback. The gateway only needs an acknowledgement; errors
// are reported so it retries.
func (h *PaymentHandler) Success(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.HandleSuccess(r.Context(), r.URL.Query()); err != nil {
		h.logger.Error("payment success callback failed", "error", err)
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Cancel handles GET /payments/cancel, the gateway's server-to-server
// cancel callback.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.HandleCancel(r.Context(), r.URL.Query()); err != nil {
		h.logger.Error("payment cancel callback failed", "error", err)
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Verify handles POST /payments/verify: the browser posting the query
// parameters it was redirected back with. Always answers 200 with a
// verification result.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	params := make(url.Values, len(body))
	for k, v := range body {
		params.Set(k, v)
	}

	RespondJSON(w, http.StatusOK, h.payments.Verify(r.Context(), params))
}

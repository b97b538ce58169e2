package handler

import (
	"net/http"

	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/service"
)

// TransactionHandler exposes the ledger to event secretaries.
type TransactionHandler struct {
	refunds *service.RefundService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(refunds *service.RefundService) *TransactionHandler {
	return &TransactionHandler{refunds: refunds}
}

// List handles GET /admin/transactions?eventId=...&registrationId=...
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	registrationID := r.URL.Query().Get("registrationId")
	if eventID == "" || registrationID == "" {
		RespondError(w, domain.ErrValidation("eventId and registrationId are required"))
		return
	}

	list, err := h.refunds.ListTransactions(r.Context(), eventID, registrationID)
	if err != nil {
		RespondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Transaction{}
	}

	RespondJSON(w, http.StatusOK, list)
}

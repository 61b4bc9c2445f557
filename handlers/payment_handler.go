package handlers

import (
	"net/http"

	"github.com/battlestacks/battlestacks/services"
)

// PaymentHandler exposes the admin payment desk: confirming a
// registration's entry fee and rolling a confirmation back to pending.
type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(ps *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: ps}
}

// ConfirmHandler handles POST /registrations/{registrationID}/confirm
func (h *PaymentHandler) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.paymentService.ConfirmPayment(r.Context(), registrationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MarkPendingHandler handles POST /registrations/{registrationID}/mark-pending
func (h *PaymentHandler) MarkPendingHandler(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.paymentService.MarkPending(r.Context(), registrationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

package handler

import (
	"fmt"
	"net/http"

	"npcshop-be/internal/checkout"
	"npcshop-be/internal/payment"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/utils"
)

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "Checkout", err)
		return
	}

	res, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, "Checkout", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, res)
}

// ShippingQuotes handles POST /api/shipping/quotes. The quote is staged so
// checkout can price the selected service without trusting the client.
func (h *Handler) ShippingQuotes(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var req shipping.QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "ShippingQuotes", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, "ShippingQuotes", fmt.Errorf("%w: %s", errBadRequest, validationMessage(err)))
		return
	}

	q, err := h.quotes.FetchQuote(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, "ShippingQuotes", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, q)
}

// PaymentOutcome handles POST /api/payments/outcome, the result the payment
// widget handed to the storefront.
func (h *Handler) PaymentOutcome(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var report payment.PaymentOutcome
	if err := decodeJSON(r, &report); err != nil {
		writeError(w, r, "PaymentOutcome", err)
		return
	}

	res, err := h.outcomes.Confirm(r.Context(), userID, report)
	if err != nil {
		writeError(w, r, "PaymentOutcome", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, res)
}

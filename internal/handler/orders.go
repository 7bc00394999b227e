package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"npcshop-be/internal/order"
	"npcshop-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

type reviewEligibilityResponse struct {
	OrderID  int64             `json:"orderId"`
	Eligible bool              `json:"eligible"`
	Status   order.OrderStatus `json:"status"`
}

type updateStatusRequest struct {
	Status         string  `json:"status" validate:"required,oneof=processing shipped delivered cancelled refunded"`
	TrackingNumber *string `json:"trackingNumber,omitempty" validate:"omitempty,min=6,max=40,alphanum"`
}

func parseOrderID(r *http.Request) (int64, error) {
	id, err := utils.ParseInt64(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid order id", errBadRequest)
	}
	return id, nil
}

func parseQueryInt32(r *http.Request, key string) (int32, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, key)
	}
	return int32(n), nil
}

// ListMyOrders handles GET /api/orders?status=&limit=&page=.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	var filter order.OrderFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st := order.OrderStatus(strings.ToLower(raw))
		if !st.Valid() {
			writeError(w, r, "ListMyOrders", fmt.Errorf("%w: unknown status %q", errBadRequest, raw))
			return
		}
		filter.Status = &st
	}

	limit, err := parseQueryInt32(r, "limit")
	if err != nil {
		writeError(w, r, "ListMyOrders", err)
		return
	}
	page, err := parseQueryInt32(r, "page")
	if err != nil {
		writeError(w, r, "ListMyOrders", err)
		return
	}

	orders, err := h.orders.ListMyOrders(r.Context(), filter, order.Pagination{Limit: limit, Page: page})
	if err != nil {
		writeError(w, r, "ListMyOrders", err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, r, "GetOrder", err)
		return
	}

	o, err := h.orders.GetOrderDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, "GetOrder", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "number"))
	if number == "" {
		writeError(w, r, "GetOrderByNumber", fmt.Errorf("%w: order number is required", errBadRequest))
		return
	}

	o, err := h.orders.GetOrderDetailByNumber(r.Context(), number)
	if err != nil {
		writeError(w, r, "GetOrderByNumber", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o)
}

// RecoverOrder handles GET /api/orders/recover?ref=. An unresolved recovery
// is a 200 carrying the transaction id for support.
func (h *Handler) RecoverOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	res, err := h.recovery.Resolve(r.Context(), userID, r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, r, "RecoverOrder", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, r, "ConfirmDelivery", err)
		return
	}

	o, err := h.orders.ConfirmDelivery(r.Context(), id)
	if err != nil {
		writeError(w, r, "ConfirmDelivery", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, r, "TrackOrder", err)
		return
	}

	res, err := h.tracking.TrackOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, "TrackOrder", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ReviewEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, r, "ReviewEligibility", err)
		return
	}

	o, eligible, err := h.orders.ReviewEligibility(r.Context(), id)
	if err != nil {
		writeError(w, r, "ReviewEligibility", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, reviewEligibilityResponse{
		OrderID:  o.ID,
		Eligible: eligible,
		Status:   o.Status,
	})
}

// AdminUpdateStatus handles PATCH /api/admin/orders/{id}/status.
func (h *Handler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, r, "AdminUpdateStatus", err)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "AdminUpdateStatus", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, "AdminUpdateStatus", fmt.Errorf("%w: %s", errBadRequest, validationMessage(err)))
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, order.Change{
		To:             order.OrderStatus(req.Status),
		Trigger:        order.TriggerAdmin,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeError(w, r, "AdminUpdateStatus", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o)
}

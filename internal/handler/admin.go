package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mmeshcher/bakeryshop/internal/model"
	"github.com/mmeshcher/bakeryshop/internal/validation"
)

// ListOrders возвращает последние заказы, фильтр ?status= необязателен.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status *model.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := model.ParseOrderStatus(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status = &st
	}

	orders, err := h.service.ListOrders(r.Context(), status)
	if err != nil {
		h.writeError(w, err, "list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type orderPatchRequest struct {
	Status        *string `json:"status"`
	Notes         *string `json:"notes"`
	CustomerName  *string `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone"`
	CustomerEmail *string `json:"customer_email"`
}

// UpdateOrder применяет частичное обновление заказа.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	patch := model.OrderPatch{
		Notes:         req.Notes,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
	}
	if req.Status != nil {
		st, err := model.ParseOrderStatus(*req.Status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		patch.Status = &st
	}
	if patch.IsEmpty() {
		http.Error(w, "empty patch", http.StatusBadRequest)
		return
	}

	id := urlParam(r, "id")
	o, err := h.service.UpdateOrder(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err, "update order error")
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// VerifyReview подтверждает отзыв и возвращает выданные награды.
func (h *Handler) VerifyReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.VerifyReview(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "verify review error")
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// RedeemReward гасит награду покупателя по коду.
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(urlParam(r, "code"))
	if !validation.IsValidRewardCode(code) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	reward, err := h.service.RedeemReward(r.Context(), code)
	if err != nil {
		h.writeError(w, err, "redeem reward error")
		return
	}

	h.writeJSON(w, http.StatusOK, reward)
}

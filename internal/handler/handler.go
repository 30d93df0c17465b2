// Package handler содержит HTTP-обработчики API витрины пекарни.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bakeryshop/internal/cart"
	"github.com/mmeshcher/bakeryshop/internal/loyalty"
	"github.com/mmeshcher/bakeryshop/internal/middleware"
	"github.com/mmeshcher/bakeryshop/internal/model"
	"github.com/mmeshcher/bakeryshop/internal/order"
	"github.com/mmeshcher/bakeryshop/internal/repository"
	"github.com/mmeshcher/bakeryshop/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)

	QuoteCart(ctx context.Context, lines []service.CartLine) (*service.Quote, error)
	Checkout(ctx context.Context, userID *int64, in service.CheckoutInput) (*model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error)
	UpdateOrder(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error)

	LoyaltyOverview(ctx context.Context, userID int64) (*loyalty.Overview, error)
	SubmitReview(ctx context.Context, userID int64, in loyalty.ReviewInput) (loyalty.ReviewResult, error)
	VerifyReview(ctx context.Context, reviewID int64) (loyalty.ReviewResult, error)
	RedeemReward(ctx context.Context, code string) (*model.LoyaltyReward, error)
	Notifications(ctx context.Context, userID int64) ([]model.Notification, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type variantChoice struct {
	Variant string `json:"variant"`
	Option  string `json:"option"`
}

type cartLineRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  float64         `json:"quantity"`
	Notes     string          `json:"notes,omitempty"`
	Variant   []variantChoice `json:"variant,omitempty"`
}

type quoteRequest struct {
	Items []cartLineRequest `json:"items"`
}

func toCartLines(items []cartLineRequest) []service.CartLine {
	lines := make([]service.CartLine, 0, len(items))
	for _, it := range items {
		l := service.CartLine{ProductID: it.ProductID, Quantity: it.Quantity, Notes: it.Notes}
		for _, v := range it.Variant {
			l.Variant = append(l.Variant, service.VariantChoice{Variant: v.Variant, Option: v.Option})
		}
		lines = append(lines, l)
	}
	return lines
}

// QuoteCart рассчитывает корзину по присланным позициям.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	quote, err := h.service.QuoteCart(r.Context(), toCartLines(req.Items))
	if err != nil {
		h.writeError(w, err, "quote cart error")
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

type checkoutRequest struct {
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Items         []cartLineRequest `json:"items"`
}

type orderResponse struct {
	model.Order
	FinalAmount decimal.Decimal `json:"final_amount"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{Order: *o, FinalAmount: o.FinalAmount()}
}

// Checkout оформляет заказ. Сессия необязательна: гость оформляет заказ без привязки к пользователю.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var userID *int64
	if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		userID = &id
	}

	o, err := h.service.Checkout(r.Context(), userID, service.CheckoutInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Notes:         req.Notes,
		Lines:         toCartLines(req.Items),
	})
	if err != nil {
		h.writeError(w, err, "checkout error")
		return
	}

	h.writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// GetOrder возвращает заказ для страницы отслеживания.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get order error")
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type reviewRequest struct {
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
	ReviewURL string `json:"review_url,omitempty"`
}

// SubmitReview принимает отзыв текущего пользователя.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.SubmitReview(r.Context(), userID, loyalty.ReviewInput{
		Rating:    req.Rating,
		Comment:   req.Comment,
		ReviewURL: req.ReviewURL,
	})
	if err != nil {
		h.writeError(w, err, "submit review error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, res)
}

// GetLoyalty возвращает прогресс и награды текущего пользователя.
func (h *Handler) GetLoyalty(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	overview, err := h.service.LoyaltyOverview(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get loyalty error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, overview)
}

// GetNotifications возвращает уведомления текущего пользователя.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	list, err := h.service.Notifications(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get notifications error", zap.Int64("userID", userID))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

type stockProblemResponse struct {
	Error    string             `json:"error"`
	Problems []cart.LineProblem `json:"problems"`
}

// writeError переводит доменные ошибки в HTTP-статусы. Неизвестные ошибки логируются как 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var (
		invalidCart *service.CartInvalidError
		overStock   *cart.StockExceededError
	)

	switch {
	case errors.As(err, &invalidCart):
		h.writeJSON(w, http.StatusConflict, stockProblemResponse{Error: "stock exceeded", Problems: invalidCart.Result.Problems})
	case errors.As(err, &overStock):
		h.writeJSON(w, http.StatusConflict, stockProblemResponse{
			Error:    "stock exceeded",
			Problems: []cart.LineProblem{{ProductID: overStock.ProductID, Requested: overStock.Requested, Available: overStock.Available}},
		})
	case errors.Is(err, cart.ErrValidation),
		errors.Is(err, order.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidContact),
		errors.Is(err, loyalty.ErrInvalidReview):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrUnknownProduct):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, order.ErrNotFound), errors.Is(err, loyalty.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrUserExists), errors.Is(err, loyalty.ErrRewardNotRedeemable):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/bakeryshop/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/loyalty", h.GetLoyalty)
			r.Post("/reviews", h.SubmitReview)
			r.Get("/notifications", h.GetNotifications)
		})
	})

	r.Post("/api/cart/quote", h.QuoteCart)

	r.Route("/api/orders", func(r chi.Router) {
		r.With(h.authMiddleware.Optional).Post("/", h.Checkout)
		r.Get("/{id}", h.GetOrder)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireAdmin(h.service))

		r.Get("/orders", h.ListOrders)
		r.Patch("/orders/{id}", h.UpdateOrder)
		r.Post("/reviews/{id}/verify", h.VerifyReview)
		r.Post("/rewards/{code}/redeem", h.RedeemReward)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

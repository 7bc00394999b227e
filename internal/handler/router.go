package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"npcshop-be/internal/logger"
	"npcshop-be/internal/middleware"
	"npcshop-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Handler    *Handler
	Webhook    http.HandlerFunc
	Metrics    http.Handler
	Limiter    *middleware.RateLimiter
	JWTSecret  []byte
	CORSOrigin string
	Health     map[string]HealthCheck
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(
		logger.RequestIDMiddleware,
		logger.LoggingMiddleware,
		middleware.CORS(cfg.CORSOrigin),
		middleware.Auth(cfg.JWTSecret),
	)
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware)
	}

	r.Get("/healthz", healthz(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Webhook != nil {
		r.Post("/webhook/payment", cfg.Webhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Post("/checkout", h.Checkout)
			r.Post("/shipping/quotes", h.ShippingQuotes)
			r.Post("/payments/outcome", h.PaymentOutcome)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListMyOrders)
				r.Get("/recover", h.RecoverOrder)
				r.Get("/number/{number}", h.GetOrderByNumber)
				r.Get("/{id}", h.GetOrder)
				r.Post("/{id}/confirm-delivery", h.ConfirmDelivery)
				r.Get("/{id}/tracking", h.TrackOrder)
				r.Get("/{id}/review-eligibility", h.ReviewEligibility)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Patch("/admin/orders/{id}/status", h.AdminUpdateStatus)
		})
	})

	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var failing []string
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing = append(failing, name)
			}
		}

		if len(failing) > 0 {
			sort.Strings(failing)
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "degraded",
				"failing": failing,
			})
			return
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig carries the cross-cutting settings for NewRouter.
type RouterConfig struct {
	JWTSecret         string
	JWTIssuer         string
	CORSOrigins       []string
	Limiter           RateLimiter
	RegisterPerMinute int
	RequestTimeout    time.Duration
}

// NewRouter builds the chi router with the global middleware stack and all API routes.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	auth := Authenticator(cfg.JWTSecret, cfg.JWTIssuer)
	admin := RequireRole(RoleAdmin)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	// Health
	r.Get("/health", HealthCheck)

	r.Route("/events/{id}", func(r chi.Router) {
		r.Get("/occupancy", h.Occupancy)
		r.Get("/registrations", h.ListRegistrations)
		r.Get("/waitlist", h.ListWaitlist)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.With(admin).Put("/", h.SyncEvent)
			r.With(RateLimit(cfg.Limiter, "register", cfg.RegisterPerMinute, time.Minute, logger)).
				Post("/register", h.Register)
		})
	})

	r.Route("/registrations/{id}", func(r chi.Router) {
		r.Get("/", h.GetRegistration)
		r.Get("/payment", h.GetRegistrationPayment)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/cancel", h.CancelRegistration)
			r.Post("/payments", h.ProcessPayment)
		})
	})

	r.Route("/payments/{id}", func(r chi.Router) {
		r.Get("/", h.GetPayment)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/capture", h.CapturePayment)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Put("/status", h.UpdatePaymentStatus)
				r.Get("/failures", h.ListFailures)
				r.Get("/audit", h.ListAudit)
				r.Get("/refunds", h.ListRefunds)
				r.Get("/refunds/maximum", h.MaximumRefund)
				r.Post("/refunds", h.ProcessRefund)
			})
		})
	})

	r.Route("/refunds/{id}", func(r chi.Router) {
		r.Use(auth, admin)
		r.Get("/", h.GetRefund)
		r.Put("/status", h.ResolveRefund)
	})

	r.Post("/webhooks/gateway", h.GatewayWebhook)

	return r
}

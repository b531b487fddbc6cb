package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/therapy-practice-api/internal/audit"
	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	"github.com/wolfman30/therapy-practice-api/internal/consent"
	"github.com/wolfman30/therapy-practice-api/internal/coupons"
	httpmiddleware "github.com/wolfman30/therapy-practice-api/internal/http/middleware"
	"github.com/wolfman30/therapy-practice-api/internal/payments"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	Bookings           *bookings.Handler
	Payments           *payments.Handler
	GatewayWebhook     *payments.WebhookHandler
	Coupons            *coupons.Handler
	Consent            *consent.Handler
	Audit              *audit.Handler
	Health             pinger
	MetricsHandler     http.Handler
	MetricsSummary     http.Handler
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints (health, metrics, gateway webhooks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Health, logger))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.GatewayWebhook != nil {
			public.Post("/webhooks/gateway", cfg.GatewayWebhook.Handle)
		}
	})

	r.Group(func(api chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		api.Use(httpmiddleware.Identity(cfg.JWTSecret))

		api.Route("/api", func(r chi.Router) {
			if cfg.Bookings != nil {
				r.Get("/slots", cfg.Bookings.AvailableSlots)
				r.Post("/bookings", cfg.Bookings.Create)
				r.With(httpmiddleware.RequireAuth).Get("/bookings", cfg.Bookings.List)
				r.With(httpmiddleware.RequireAuth).Post("/bookings/{id}/cancel", cfg.Bookings.Cancel)
			}
			if cfg.Consent != nil {
				r.Post("/consents", cfg.Consent.Record)
				r.Get("/consents/status", cfg.Consent.Status)
			}
			if cfg.Payments != nil {
				r.Post("/payments/orders", cfg.Payments.CreateOrder)
				r.Post("/payments/verify", cfg.Payments.Verify)
				r.Post("/payments/link", cfg.Payments.Link)
			}
			if cfg.Coupons != nil {
				r.Post("/coupons/validate", cfg.Coupons.Validate)
			}
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireStaff)
			if cfg.Bookings != nil {
				admin.Get("/bookings", cfg.Bookings.List)
				admin.Post("/bookings/{id}/transition", cfg.Bookings.Transition)
				admin.Post("/bookings/{id}/cancel", cfg.Bookings.Cancel)
				admin.With(httpmiddleware.RequireAdmin).Delete("/bookings/{id}", cfg.Bookings.Delete)
			}
			if cfg.Payments != nil {
				admin.Post("/payments/refund", cfg.Payments.AdminRefund)
			}
			if cfg.Coupons != nil {
				admin.Get("/coupons", cfg.Coupons.List)
				admin.Post("/coupons", cfg.Coupons.Create)
				admin.Put("/coupons/{code}", cfg.Coupons.Update)
				admin.Put("/coupons/{code}/active", cfg.Coupons.SetActive)
			}
			if cfg.Audit != nil {
				admin.Get("/reconciliation", cfg.Audit.Reconciliation)
				admin.Get("/audit", cfg.Audit.Events)
			}
			if cfg.MetricsSummary != nil {
				admin.Method(http.MethodGet, "/metrics/summary", cfg.MetricsSummary)
			}
		})
	})

	return r
}

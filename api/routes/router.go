package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendiqhq/vendiq-backend/api/controllers"
	ordercontrollers "github.com/vendiqhq/vendiq-backend/api/controllers/orders"
	webhookcontrollers "github.com/vendiqhq/vendiq-backend/api/controllers/webhooks"
	"github.com/vendiqhq/vendiq-backend/api/middleware"
	internalorders "github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/internal/payments"
	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/db"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox/idempotency"
	"github.com/vendiqhq/vendiq-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersSvc internalorders.Service,
	paymentsSvc payments.Service,
	webhookGuard *idempotency.Manager,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentConfirmation(paymentsSvc, webhookGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Post("/{orderId}/status", ordercontrollers.Transition(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
		})

		r.Route("/v1/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole("seller", logg))
			r.Get("/orders/{orderId}", ordercontrollers.SellerView(ordersSvc, logg))
		})
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-payouts/api/controllers"
	webhookcontrollers "github.com/angelmondragon/packfinderz-payouts/api/controllers/webhooks"
	"github.com/angelmondragon/packfinderz-payouts/api/middleware"
	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

// Dependencies are the services the payouts API serves. Pingers left nil are
// not part of readiness.
type Dependencies struct {
	DB       db.Pinger
	Redis    db.Pinger
	PubSub   db.Pinger
	Metrics  prometheus.Gatherer
	Status   controllers.PayoutStatusService
	Orders   controllers.OrderReader
	Accounts controllers.PayoutOnboardingService
	Webhooks webhookcontrollers.PayoutWebhookService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]db.Pinger{
			"db":     deps.DB,
			"redis":  deps.Redis,
			"pubsub": deps.PubSub,
		}))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payouts/{provider}", webhookcontrollers.PayoutWebhook(deps.Webhooks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(logg, enums.ActorRoleSeller),
		)
		r.Get("/orders/{orderId}/payout-status", controllers.SellerPayoutStatus(deps.Status, deps.Orders, logg))
		r.Post("/payout-account", controllers.PayoutAccountOnboarding(deps.Accounts, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(logg, enums.ActorRoleOperator),
		)
		r.Get("/orders/{orderId}/payout-status", controllers.OperatorPayoutStatus(deps.Status, logg))
		r.Delete("/orders/{orderId}/payout-block", controllers.ReleasePayoutBlock(deps.Status, logg))
	})

	return r
}

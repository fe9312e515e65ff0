package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cashierhq/cashier-backend/api/controllers"
	billingcontrollers "github.com/cashierhq/cashier-backend/api/controllers/billing"
	webhookcontrollers "github.com/cashierhq/cashier-backend/api/controllers/webhooks"
	"github.com/cashierhq/cashier-backend/api/middleware"
	razorpaywebhook "github.com/cashierhq/cashier-backend/internal/webhooks/razorpay"
	"github.com/cashierhq/cashier-backend/pkg/config"
	"github.com/cashierhq/cashier-backend/pkg/db"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
	"github.com/cashierhq/cashier-backend/pkg/redis"
)

// BillingService is the slice of internal/billing the routes read from.
type BillingService interface {
	billingcontrollers.SubscriptionLister
	billingcontrollers.ReceiptsService
}

// RouterParams groups everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Registry *prometheus.Registry

	RazorpayClient *razorpay.Client
	WebhookService webhookcontrollers.RazorpayDispatcher
	WebhookGuard   *razorpaywebhook.IdempotencyGuard

	Users         billingcontrollers.UserStore
	Subscriptions billingcontrollers.SubscriptionsService
	Billing       BillingService
	Charges       billingcontrollers.ChargesService
	Customers     billingcontrollers.CustomersService
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	r.Post("/"+cfg.Razorpay.WebhookPath+"/webhook", webhookcontrollers.RazorpayWebhook(
		params.WebhookService,
		params.RazorpayClient,
		cfg.Razorpay.SignatureCheckEnabled(),
		params.WebhookGuard,
		logg,
	))

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", billingcontrollers.CreateSubscription(params.Subscriptions, params.Users, logg))
			r.Get("/", billingcontrollers.ListSubscriptions(params.Billing, params.Subscriptions, logg))
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", billingcontrollers.GetSubscription(params.Subscriptions, logg))
				r.Patch("/", billingcontrollers.UpdateSubscription(params.Subscriptions, logg))
				r.Post("/pause", billingcontrollers.PauseSubscription(params.Subscriptions, logg))
				r.Post("/resume", billingcontrollers.ResumeSubscription(params.Subscriptions, logg))
				r.Post("/cancel", billingcontrollers.CancelSubscription(params.Subscriptions, logg))
				r.Post("/cancel-now", billingcontrollers.CancelSubscriptionNow(params.Subscriptions, logg))
			})
		})

		r.Get("/receipts", billingcontrollers.ListReceipts(params.Billing, logg))
		r.Post("/charges", billingcontrollers.CreateCharge(params.Charges, params.Users, logg))
		r.Post("/refunds", billingcontrollers.CreateRefund(params.Charges, logg))

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", billingcontrollers.CreateCustomer(params.Customers, params.Users, logg))
			r.Post("/sync", billingcontrollers.SyncCustomer(params.Customers, params.Users, logg))
		})
	})

	return r
}

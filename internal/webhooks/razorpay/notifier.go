package razorpaywebhook

import (
	"context"
	"time"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/metrics"
)

// Notifier observes dispatch outcomes and the domain changes handlers make.
// Implementations must be safe for concurrent use.
type Notifier interface {
	EventReceived(ctx context.Context, event string)
	EventHandled(ctx context.Context, event string, took time.Duration)
	EventSkipped(ctx context.Context, event string, err error)

	SubscriptionCreated(ctx context.Context, sub *models.Subscription)
	SubscriptionUpdated(ctx context.Context, sub *models.Subscription)
	SubscriptionCancelled(ctx context.Context, sub *models.Subscription)
	SubscriptionPaymentFailed(ctx context.Context, sub *models.Subscription)
	PaymentSucceeded(ctx context.Context, receipt *models.Receipt)
}

// LogNotifier reports through structured logs and Prometheus counters.
type LogNotifier struct {
	logg    *logger.Logger
	metrics *metrics.WebhookMetrics
}

// NewLogNotifier builds the default notifier. Metrics may be nil in tests.
func NewLogNotifier(logg *logger.Logger, m *metrics.WebhookMetrics) *LogNotifier {
	return &LogNotifier{logg: logg, metrics: m}
}

func (n *LogNotifier) EventReceived(ctx context.Context, event string) {
	n.metrics.IncReceived(event)
	n.logg.Info(n.logg.WithWebhookEvent(ctx, event), "webhook event received")
}

func (n *LogNotifier) EventHandled(ctx context.Context, event string, took time.Duration) {
	n.metrics.IncHandled(event)
	n.metrics.ObserveDispatch(event, took)
	n.logg.Info(n.logg.WithWebhookEvent(ctx, event), "webhook event handled")
}

func (n *LogNotifier) EventSkipped(ctx context.Context, event string, err error) {
	n.metrics.IncSkipped(event)
	logCtx := n.logg.WithWebhookEvent(ctx, event)
	n.logg.Error(logCtx, "webhook event skipped", err)
}

func (n *LogNotifier) SubscriptionCreated(ctx context.Context, sub *models.Subscription) {
	n.logg.Info(n.subCtx(ctx, sub), "subscription created from webhook")
}

func (n *LogNotifier) SubscriptionUpdated(ctx context.Context, sub *models.Subscription) {
	n.logg.Info(n.subCtx(ctx, sub), "subscription updated from webhook")
}

func (n *LogNotifier) SubscriptionCancelled(ctx context.Context, sub *models.Subscription) {
	n.logg.Info(n.subCtx(ctx, sub), "subscription cancelled from webhook")
}

func (n *LogNotifier) SubscriptionPaymentFailed(ctx context.Context, sub *models.Subscription) {
	n.logg.Warn(n.subCtx(ctx, sub), "subscription payment failed")
}

func (n *LogNotifier) PaymentSucceeded(ctx context.Context, receipt *models.Receipt) {
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"order_id": receipt.OrderID,
		"amount":   receipt.Amount,
		"currency": receipt.Currency,
	})
	n.logg.Info(logCtx, "payment recorded")
}

func (n *LogNotifier) subCtx(ctx context.Context, sub *models.Subscription) context.Context {
	logCtx := n.logg.WithSubscriptionID(ctx, sub.GatewayID())
	return n.logg.WithBillableID(logCtx, sub.UserID.String())
}

package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cashierhq/cashier-backend/internal/billing"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/enums"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
	"github.com/cashierhq/cashier-backend/pkg/redis"
)

const (
	infoCacheScope = "subscription_info"
	infoCacheTTL   = 15 * time.Minute
)

// Gateway is the slice of the Razorpay client the lifecycle service needs.
type Gateway interface {
	CreateSubscription(ctx context.Context, params razorpay.SubscriptionCreateParams) (*razorpay.Subscription, error)
	FetchSubscription(ctx context.Context, id string) (*razorpay.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params razorpay.SubscriptionUpdateParams) (*razorpay.Subscription, error)
	PauseSubscription(ctx context.Context, id string) (*razorpay.Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (*razorpay.Subscription, error)
	CancelSubscription(ctx context.Context, id string, atCycleEnd bool) (*razorpay.Subscription, error)
	FetchPayment(ctx context.Context, id string) (*razorpay.Payment, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	Gateway           Gateway
	Cache             redis.Cache
	Logger            *logger.Logger
	TransactionRunner txRunner
	DeactivatePastDue bool
}

// Service drives the subscription lifecycle. Every mutation talks to the
// gateway first and persists the local row only after the remote call
// succeeds, so local state never runs ahead of Razorpay.
type Service struct {
	billingRepo       billing.Repository
	gateway           Gateway
	cache             redis.Cache
	logg              *logger.Logger
	txRunner          txRunner
	deactivatePastDue bool
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		billingRepo:       params.BillingRepo,
		gateway:           params.Gateway,
		cache:             params.Cache,
		logg:              params.Logger,
		txRunner:          params.TransactionRunner,
		deactivatePastDue: params.DeactivatePastDue,
	}, nil
}

// DeactivatePastDue reports whether past-due subscriptions lose access.
func (s *Service) DeactivatePastDue() bool {
	return s.deactivatePastDue
}

// Find loads the user's subscription by name, nil when absent.
func (s *Service) Find(ctx context.Context, userID uuid.UUID, name string) (*models.Subscription, error) {
	return s.billingRepo.FindSubscriptionByUserAndName(ctx, userID, name)
}

// UpdateQuantity sets an absolute seat count on an on-cycle subscription.
func (s *Service) UpdateQuantity(ctx context.Context, sub *models.Subscription, quantity int) (*models.Subscription, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := s.guardMutable(sub); err != nil {
		return nil, err
	}

	remote, err := s.gateway.UpdateSubscription(ctx, sub.GatewayID(), razorpay.SubscriptionUpdateParams{
		Quantity: quantity,
		Prorate:  sub.Prorate,
	})
	if err != nil {
		return nil, err
	}

	return s.persist(ctx, sub, func(row *models.Subscription) {
		row.Quantity = quantity
		if remote.PlanID != "" {
			row.PlanID = remote.PlanID
		}
	})
}

// IncrementQuantity adds count seats, defaulting to one.
func (s *Service) IncrementQuantity(ctx context.Context, sub *models.Subscription, count int) (*models.Subscription, error) {
	if count < 1 {
		count = 1
	}
	return s.UpdateQuantity(ctx, sub, sub.Quantity+count)
}

// DecrementQuantity removes count seats but never drops below one.
func (s *Service) DecrementQuantity(ctx context.Context, sub *models.Subscription, count int) (*models.Subscription, error) {
	if count < 1 {
		count = 1
	}
	quantity := sub.Quantity - count
	if quantity < 1 {
		quantity = 1
	}
	return s.UpdateQuantity(ctx, sub, quantity)
}

// Swap moves the subscription onto a different plan at cycle end, or
// immediately when the subscription prorates.
func (s *Service) Swap(ctx context.Context, sub *models.Subscription, planID string) (*models.Subscription, error) {
	return s.swap(ctx, sub, planID, sub != nil && sub.Prorate)
}

// SwapAndInvoice moves the subscription onto a different plan immediately,
// invoicing the difference right away.
func (s *Service) SwapAndInvoice(ctx context.Context, sub *models.Subscription, planID string) (*models.Subscription, error) {
	return s.swap(ctx, sub, planID, true)
}

func (s *Service) swap(ctx context.Context, sub *models.Subscription, planID string, now bool) (*models.Subscription, error) {
	if planID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if err := s.guardMutable(sub); err != nil {
		return nil, err
	}

	remote, err := s.gateway.UpdateSubscription(ctx, sub.GatewayID(), razorpay.SubscriptionUpdateParams{
		PlanID:   planID,
		Quantity: sub.Quantity,
		Prorate:  now,
	})
	if err != nil {
		return nil, err
	}

	return s.persist(ctx, sub, func(row *models.Subscription) {
		row.PlanID = planID
		if remote.Quantity > 0 {
			row.Quantity = remote.Quantity
		}
	})
}

// Pause stops charging immediately. Only an active subscription can pause.
func (s *Service) Pause(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := s.requireGatewayID(sub); err != nil {
		return nil, err
	}
	if sub.Paused() || sub.OnPausedGracePeriod() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already paused")
	}
	if !sub.Active(s.deactivatePastDue) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only an active subscription can be paused")
	}

	remote, err := s.gateway.PauseSubscription(ctx, sub.GatewayID())
	if err != nil {
		return nil, err
	}

	pausedFrom := time.Now().UTC()
	if remote.PausedAt != nil && *remote.PausedAt > 0 {
		pausedFrom = time.Unix(*remote.PausedAt, 0).UTC()
	}
	return s.persist(ctx, sub, func(row *models.Subscription) {
		row.Status = remoteStatusOr(remote, enums.SubscriptionStatusPaused)
		row.PausedFrom = &pausedFrom
	})
}

// Unpause resumes a paused subscription.
func (s *Service) Unpause(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := s.requireGatewayID(sub); err != nil {
		return nil, err
	}
	if !sub.Paused() && !sub.OnPausedGracePeriod() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only a paused subscription can be unpaused")
	}

	remote, err := s.gateway.ResumeSubscription(ctx, sub.GatewayID())
	if err != nil {
		return nil, err
	}

	return s.persist(ctx, sub, func(row *models.Subscription) {
		row.Status = remoteStatusOr(remote, enums.SubscriptionStatusActive)
		row.PausedFrom = nil
		row.EndsAt = nil
	})
}

// Cancel schedules a cancellation for the end of the current billing cycle.
// The subscription keeps entitling the user until the paid-for window ends.
// Cancelling an already-cancelled subscription is a no-op.
func (s *Service) Cancel(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := s.requireGatewayID(sub); err != nil {
		return nil, err
	}
	if sub.OnGracePeriod() {
		return sub, nil
	}
	if sub.Ended() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has already ended")
	}

	remote, err := s.gateway.CancelSubscription(ctx, sub.GatewayID(), true)
	if err != nil {
		return nil, err
	}

	endsAt := s.cancellationEndsAt(sub, remote)
	return s.persist(ctx, sub, func(row *models.Subscription) {
		row.Status = remoteStatusOr(remote, enums.SubscriptionStatusCancelled)
		row.EndsAt = &endsAt
	})
}

// CancelNow tears the subscription down immediately with no grace period.
func (s *Service) CancelNow(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := s.requireGatewayID(sub); err != nil {
		return nil, err
	}
	if sub.Ended() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has already ended")
	}

	if _, err := s.gateway.CancelSubscription(ctx, sub.GatewayID(), false); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return s.persist(ctx, sub, func(row *models.Subscription) {
		row.Status = enums.SubscriptionStatusCancelled
		row.EndsAt = &now
	})
}

// Info is a point-in-time snapshot of the gateway subscription record.
type Info struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	Status     string `json:"status"`
	Quantity   int    `json:"quantity"`
	ShortURL   string `json:"short_url,omitempty"`
	CurrentEnd *int64 `json:"current_end,omitempty"`
	EndAt      *int64 `json:"end_at,omitempty"`
	PausedAt   *int64 `json:"paused_at,omitempty"`

	LastPaymentID     string `json:"last_payment_id,omitempty"`
	LastPaymentAmount int64  `json:"last_payment_amount,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	CardBrand         string `json:"card_brand,omitempty"`
	CardLastFour      string `json:"card_last_four,omitempty"`
}

// Info returns the gateway's view of the subscription, served from cache
// when a recent snapshot exists. Mutations drop the snapshot, so a stale
// read never survives a local change.
func (s *Service) Info(ctx context.Context, sub *models.Subscription) (*Info, error) {
	if err := s.requireGatewayID(sub); err != nil {
		return nil, err
	}

	key := s.cache.CacheKey(infoCacheScope, sub.GatewayID())
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var info Info
		if jsonErr := json.Unmarshal([]byte(raw), &info); jsonErr == nil {
			return &info, nil
		}
	} else if !redis.IsMiss(err) {
		logCtx := s.logg.WithSubscriptionID(ctx, sub.GatewayID())
		s.logg.Warn(logCtx, "subscription info cache read failed")
	}

	remote, err := s.gateway.FetchSubscription(ctx, sub.GatewayID())
	if err != nil {
		return nil, err
	}
	info := &Info{
		ID:         remote.ID,
		PlanID:     remote.PlanID,
		Status:     remote.Status,
		Quantity:   remote.Quantity,
		ShortURL:   remote.ShortURL,
		CurrentEnd: remote.CurrentEnd,
		EndAt:      remote.EndAt,
		PausedAt:   remote.PausedAt,
	}
	s.attachPaymentDetails(ctx, sub, info)

	if encoded, err := json.Marshal(info); err == nil {
		if err := s.cache.Set(ctx, key, string(encoded), infoCacheTTL); err != nil {
			logCtx := s.logg.WithSubscriptionID(ctx, sub.GatewayID())
			s.logg.Warn(logCtx, "subscription info cache write failed")
		}
	}
	return info, nil
}

// attachPaymentDetails fills the snapshot with the most recent payment made
// against this subscription. The snapshot stays useful without it, so lookup
// failures are logged and swallowed.
func (s *Service) attachPaymentDetails(ctx context.Context, sub *models.Subscription, info *Info) {
	receipts, err := s.billingRepo.ListReceiptsByUser(ctx, sub.UserID)
	if err != nil {
		logCtx := s.logg.WithSubscriptionID(ctx, sub.GatewayID())
		s.logg.Warn(logCtx, "subscription info receipt lookup failed")
		return
	}

	gatewayID := sub.GatewayID()
	for i := range receipts {
		receipt := &receipts[i]
		if receipt.RazorpaySubscriptionID == nil || *receipt.RazorpaySubscriptionID != gatewayID {
			continue
		}
		payment, err := s.gateway.FetchPayment(ctx, receipt.PaymentID)
		if err != nil {
			logCtx := s.logg.WithSubscriptionID(ctx, gatewayID)
			s.logg.Warn(logCtx, "subscription info payment fetch failed")
			return
		}
		info.LastPaymentID = payment.ID
		info.LastPaymentAmount = payment.Amount
		info.PaymentMethod = payment.Method
		info.CardBrand = payment.CardNetwork
		info.CardLastFour = payment.CardLastFour
		return
	}
}

// remoteStatusOr maps the gateway's reported status onto the local enum,
// falling back when the gateway reports something unknown.
func remoteStatusOr(remote *razorpay.Subscription, fallback enums.SubscriptionStatus) enums.SubscriptionStatus {
	if remote == nil {
		return fallback
	}
	status, err := enums.ParseSubscriptionStatus(remote.Status)
	if err != nil {
		return fallback
	}
	return status
}

func (s *Service) cancellationEndsAt(sub *models.Subscription, remote *razorpay.Subscription) time.Time {
	if sub.OnTrial() {
		return *sub.TrialEndsAt
	}
	if remote != nil {
		if remote.EndAt != nil && *remote.EndAt > 0 {
			return time.Unix(*remote.EndAt, 0).UTC()
		}
		if remote.CurrentEnd != nil && *remote.CurrentEnd > 0 {
			return time.Unix(*remote.CurrentEnd, 0).UTC()
		}
	}
	return time.Now().UTC()
}

// guardMutable rejects plan and quantity changes on subscriptions whose
// billing cycle is not currently in a chargeable state.
func (s *Service) guardMutable(sub *models.Subscription) error {
	if err := s.requireGatewayID(sub); err != nil {
		return err
	}
	switch {
	case sub.OnTrial():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription cannot change while on trial")
	case sub.Paused() || sub.OnPausedGracePeriod():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription cannot change while paused")
	case sub.Cancelled():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription cannot change after cancellation")
	case sub.PastDue():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription cannot change while past due")
	}
	return nil
}

func (s *Service) requireGatewayID(sub *models.Subscription) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.GatewayID() == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has not been confirmed by the gateway yet")
	}
	return nil
}

func (s *Service) persist(ctx context.Context, sub *models.Subscription, modify func(*models.Subscription)) (*models.Subscription, error) {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		modify(sub)
		return s.billingRepo.WithTx(tx).UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateInfo(ctx, sub.GatewayID())
	return sub, nil
}

func (s *Service) invalidateInfo(ctx context.Context, gatewayID string) {
	if gatewayID == "" {
		return
	}
	if err := s.cache.Del(ctx, s.cache.CacheKey(infoCacheScope, gatewayID)); err != nil {
		logCtx := s.logg.WithSubscriptionID(ctx, gatewayID)
		s.logg.Warn(logCtx, "subscription info cache invalidation failed")
	}
}

package razorpaywebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cashierhq/cashier-backend/internal/billing"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/enums"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
)

// Outcome classifies a dispatch so the HTTP layer can shape its response.
type Outcome int

const (
	// OutcomeUnhandled means no handler is registered for the event.
	OutcomeUnhandled Outcome = iota
	// OutcomeHandled means the handler ran to completion.
	OutcomeHandled
	// OutcomeSkipped means the handler failed and the event was absorbed.
	OutcomeSkipped
)

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type handlerFunc func(ctx context.Context, event *Event) error

// ServiceParams groups dependencies for the webhook dispatcher.
type ServiceParams struct {
	BillingRepo       billing.Repository
	Users             userFinder
	TransactionRunner txRunner
	Notifier          Notifier
}

// Service routes gateway events to handlers. Handlers that mutate a
// subscription serialize per gateway subscription id and run inside a DB
// transaction, so concurrent deliveries for the same subscription cannot
// interleave.
type Service struct {
	billingRepo billing.Repository
	users       userFinder
	txRunner    txRunner
	notifier    Notifier
	locks       *keyLock
	handlers    map[string]handlerFunc
}

// NewService builds the dispatcher with its event registry.
func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user finder required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	s := &Service{
		billingRepo: params.BillingRepo,
		users:       params.Users,
		txRunner:    params.TransactionRunner,
		notifier:    params.Notifier,
		locks:       newKeyLock(),
	}
	s.handlers = map[string]handlerFunc{
		"invoice.paid":                s.handleInvoicePaid,
		"subscription.authenticated":  s.handleSubscriptionAuthenticated,
		"subscription.updated":        s.handleSubscriptionUpdated,
		"subscription.paused":         s.handleSubscriptionPaused,
		"subscription.resumed":        s.handleSubscriptionResumed,
		"subscription.halted":         s.handleSubscriptionHalted,
		"subscription.cancelled":      s.handleSubscriptionCancelled,
		"subscription.completed":      s.handleSubscriptionCompleted,
		"subscription.payment_failed": s.handleSubscriptionPaymentFailed,
	}
	return s, nil
}

// Dispatch routes the event to its handler. Handler errors are absorbed into
// OutcomeSkipped; the returned error is for logging only.
func (s *Service) Dispatch(ctx context.Context, event *Event) (Outcome, error) {
	if event == nil {
		return OutcomeUnhandled, nil
	}
	s.notifier.EventReceived(ctx, event.Event)

	handler, ok := s.handlers[event.Event]
	if !ok {
		return OutcomeUnhandled, nil
	}

	start := time.Now()
	if err := handler(ctx, event); err != nil {
		s.notifier.EventSkipped(ctx, event.Event, err)
		return OutcomeSkipped, err
	}
	s.notifier.EventHandled(ctx, event.Event, time.Since(start))
	return OutcomeHandled, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *Event) error {
	if event.Payload.Invoice == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice payload required")
	}
	inv := event.Payload.Invoice.Entity
	if inv.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice order id required")
	}
	if inv.SubscriptionID == "" {
		// one-off invoice, nothing to reconcile
		return nil
	}

	unlock := s.locks.Lock(inv.SubscriptionID)
	defer unlock()

	var receipt *models.Receipt
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		sub, err := repo.FindSubscriptionByGatewayID(ctx, inv.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return nil
		}
		paidAt := time.Now().UTC()
		if inv.PaidAt != nil && *inv.PaidAt > 0 {
			paidAt = time.Unix(*inv.PaidAt, 0).UTC()
		}
		gatewayID := sub.GatewayID()
		stored, created, err := repo.RecordReceipt(ctx, &models.Receipt{
			UserID:                 sub.UserID,
			RazorpaySubscriptionID: &gatewayID,
			PaymentID:              inv.PaymentID,
			OrderID:                inv.OrderID,
			Amount:                 inv.Amount,
			Tax:                    inv.TaxAmount,
			Currency:               inv.Currency,
			Quantity:               sub.Quantity,
			ReceiptURL:             inv.ShortURL,
			PaidAt:                 paidAt,
		})
		if err != nil {
			return err
		}
		if created {
			receipt = stored
		}
		return nil
	})
	if err != nil {
		return err
	}
	if receipt != nil {
		s.notifier.PaymentSucceeded(ctx, receipt)
	}
	return nil
}

func (s *Service) handleSubscriptionAuthenticated(ctx context.Context, event *Event) error {
	entity, err := subscriptionEntity(event)
	if err != nil {
		return err
	}
	rawBillable, ok := entity.Notes["billable_id"]
	if !ok || rawBillable == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "billable_id note required")
	}
	billableID, err := uuid.Parse(rawBillable)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse billable_id note")
	}

	user, err := s.users.FindByID(ctx, billableID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	name := entity.Notes["subscription_name"]
	if name == "" {
		name = models.DefaultSubscriptionName
	}

	now := time.Now().UTC()
	var trialEndsAt *time.Time
	status := enums.SubscriptionStatusActive
	if entity.StartAt != nil {
		start := time.Unix(*entity.StartAt, 0).UTC()
		if start.After(now) {
			day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
			trialEndsAt = &day
			if parsed, parseErr := enums.ParseSubscriptionStatus(entity.Status); parseErr == nil {
				status = parsed
			}
		}
	}

	quantity := entity.Quantity
	if quantity < 1 {
		quantity = 1
	}

	unlock := s.locks.Lock(entity.ID)
	defer unlock()

	var created *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		existing, err := repo.FindSubscriptionByGatewayID(ctx, entity.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		created = &models.Subscription{
			UserID:                 user.ID,
			Name:                   name,
			RazorpaySubscriptionID: &entity.ID,
			PlanID:                 entity.PlanID,
			Status:                 status,
			Quantity:               quantity,
			TrialEndsAt:            trialEndsAt,
		}
		return repo.CreateSubscription(ctx, created)
	})
	if err != nil {
		return err
	}
	if created != nil {
		s.notifier.SubscriptionCreated(ctx, created)
	}
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	return s.mutateSubscription(ctx, event, func(sub *models.Subscription, entity SubscriptionEntity) {
		if entity.PlanID != "" {
			sub.PlanID = entity.PlanID
		}
		if parsed, err := enums.ParseSubscriptionStatus(entity.Status); err == nil {
			sub.Status = parsed
		}
		if entity.Quantity > 0 {
			sub.Quantity = entity.Quantity
		}
	}, s.notifier.SubscriptionUpdated)
}

func (s *Service) handleSubscriptionPaused(ctx context.Context, event *Event) error {
	return s.mutateSubscription(ctx, event, func(sub *models.Subscription, entity SubscriptionEntity) {
		if parsed, err := enums.ParseSubscriptionStatus(entity.Status); err == nil {
			sub.Status = parsed
		}
		sub.EndsAt = unixTimePtr(entity.CurrentEnd)
		now := time.Now().UTC()
		sub.PausedFrom = &now
	}, s.notifier.SubscriptionUpdated)
}

func (s *Service) handleSubscriptionResumed(ctx context.Context, event *Event) error {
	return s.mutateSubscription(ctx, event, func(sub *models.Subscription, entity SubscriptionEntity) {
		if parsed, err := enums.ParseSubscriptionStatus(entity.Status); err == nil {
			sub.Status = parsed
		}
		sub.PausedFrom = nil
		sub.EndsAt = nil
	}, nil)
}

func (s *Service) handleSubscriptionHalted(ctx context.Context, event *Event) error {
	return s.mutateSubscription(ctx, event, func(sub *models.Subscription, entity SubscriptionEntity) {
		if parsed, err := enums.ParseSubscriptionStatus(entity.Status); err == nil {
			sub.Status = parsed
		}
		now := time.Now().UTC()
		sub.EndsAt = &now
	}, s.notifier.SubscriptionUpdated)
}

func (s *Service) handleSubscriptionCancelled(ctx context.Context, event *Event) error {
	return s.mutateSubscription(ctx, event, func(sub *models.Subscription, entity SubscriptionEntity) {
		if sub.EndsAt == nil {
			sub.EndsAt = unixTimePtr(entity.CurrentEnd)
			if sub.EndsAt == nil {
				now := time.Now().UTC()
				sub.EndsAt = &now
			}
		}
		if parsed, err := enums.ParseSubscriptionStatus(entity.Status); err == nil {
			sub.Status = parsed
		}
		sub.PausedFrom = nil
	}, s.notifier.SubscriptionCancelled)
}

func (s *Service) handleSubscriptionCompleted(ctx context.Context, event *Event) error {
	return s.mutateSubscription(ctx, event, func(sub *models.Subscription, entity SubscriptionEntity) {
		sub.EndsAt = unixTimePtr(entity.CurrentEnd)
		if sub.EndsAt == nil {
			now := time.Now().UTC()
			sub.EndsAt = &now
		}
		if parsed, err := enums.ParseSubscriptionStatus(entity.Status); err == nil {
			sub.Status = parsed
		}
		sub.PausedFrom = nil
	}, nil)
}

func (s *Service) handleSubscriptionPaymentFailed(ctx context.Context, event *Event) error {
	entity, err := subscriptionEntity(event)
	if err != nil {
		return err
	}
	sub, err := s.billingRepo.FindSubscriptionByGatewayID(ctx, entity.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	s.notifier.SubscriptionPaymentFailed(ctx, sub)
	return nil
}

// mutateSubscription locates the subscription by gateway id and applies the
// change inside a transaction. A missing subscription is a silent no-op.
func (s *Service) mutateSubscription(ctx context.Context, event *Event, apply func(*models.Subscription, SubscriptionEntity), notify func(context.Context, *models.Subscription)) error {
	entity, err := subscriptionEntity(event)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(entity.ID)
	defer unlock()

	var mutated *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		sub, err := repo.FindSubscriptionByGatewayID(ctx, entity.ID)
		if err != nil {
			return err
		}
		if sub == nil {
			return nil
		}
		apply(sub, entity)
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		mutated = sub
		return nil
	})
	if err != nil {
		return err
	}
	if mutated != nil && notify != nil {
		notify(ctx, mutated)
	}
	return nil
}

func subscriptionEntity(event *Event) (SubscriptionEntity, error) {
	if event.Payload.Subscription == nil {
		return SubscriptionEntity{}, pkgerrors.New(pkgerrors.CodeValidation, "subscription payload required")
	}
	entity := event.Payload.Subscription.Entity
	if entity.ID == "" {
		return SubscriptionEntity{}, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	return entity, nil
}

func unixTimePtr(ts *int64) *time.Time {
	if ts == nil || *ts <= 0 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}

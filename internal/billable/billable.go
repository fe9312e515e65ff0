// Package billable stitches the customer, charge, subscription, and receipt
// services into one surface keyed by user, mirroring how callers think about
// billing: "what can this user do, what do they owe, what do they own".
package billable

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashierhq/cashier-backend/internal/charges"
	"github.com/cashierhq/cashier-backend/internal/subscriptions"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

// CustomerOps is the customer-linking capability.
type CustomerOps interface {
	CreateAsCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error)
	CreateOrGetCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error)
	UpdateCustomer(ctx context.Context, user *models.User, params razorpay.CustomerParams) (*razorpay.Customer, error)
	SyncDetails(ctx context.Context, user *models.User) (*razorpay.Customer, error)
	PreferredCurrency() string
}

// ChargeOps is the one-off charge and refund capability.
type ChargeOps interface {
	Charge(ctx context.Context, user *models.User, amount decimal.Decimal, description string) (*charges.ChargeResult, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*razorpay.Refund, error)
}

// SubscriptionOps is the recurring billing capability.
type SubscriptionOps interface {
	NewSubscription(user *models.User, name, planID string) *subscriptions.Builder
	Find(ctx context.Context, userID uuid.UUID, name string) (*models.Subscription, error)
	DeactivatePastDue() bool
}

// ReceiptOps is the billing history capability.
type ReceiptOps interface {
	Receipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error)
	Subscriptions(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
}

// ServiceParams groups the capability implementations.
type ServiceParams struct {
	Customers     CustomerOps
	Charges       ChargeOps
	Subscriptions SubscriptionOps
	Receipts      ReceiptOps
}

// Service composes the four billing capabilities by delegation.
type Service struct {
	CustomerOps
	ChargeOps
	SubscriptionOps
	ReceiptOps
}

// NewService builds the composed billable surface.
func NewService(params ServiceParams) (*Service, error) {
	if params.Customers == nil {
		return nil, errors.New("customer ops required")
	}
	if params.Charges == nil {
		return nil, errors.New("charge ops required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription ops required")
	}
	if params.Receipts == nil {
		return nil, errors.New("receipt ops required")
	}
	return &Service{
		CustomerOps:     params.Customers,
		ChargeOps:       params.Charges,
		SubscriptionOps: params.Subscriptions,
		ReceiptOps:      params.Receipts,
	}, nil
}

// Subscription loads the user's named subscription, nil when absent.
func (s *Service) Subscription(ctx context.Context, user *models.User, name string) (*models.Subscription, error) {
	if user == nil {
		return nil, nil
	}
	return s.Find(ctx, user.ID, name)
}

// Subscribed reports whether the user holds a valid subscription under the
// given name. A non-empty planID additionally requires that exact plan.
func (s *Service) Subscribed(ctx context.Context, user *models.User, name, planID string) (bool, error) {
	sub, err := s.Subscription(ctx, user, name)
	if err != nil {
		return false, err
	}
	if sub == nil || !sub.Valid(s.DeactivatePastDue()) {
		return false, nil
	}
	if planID != "" && !sub.HasPlan(planID) {
		return false, nil
	}
	return true, nil
}

// SubscribedToPlan reports whether the named subscription is valid and on
// the given plan.
func (s *Service) SubscribedToPlan(ctx context.Context, user *models.User, planID, name string) (bool, error) {
	return s.Subscribed(ctx, user, name, planID)
}

// OnPlan reports whether the user holds any valid subscription on the given
// plan, regardless of subscription name.
func (s *Service) OnPlan(ctx context.Context, user *models.User, planID string) (bool, error) {
	if user == nil {
		return false, nil
	}
	subs, err := s.Subscriptions(ctx, user.ID)
	if err != nil {
		return false, err
	}
	for i := range subs {
		if subs[i].HasPlan(planID) && subs[i].Valid(s.DeactivatePastDue()) {
			return true, nil
		}
	}
	return false, nil
}

// OnTrial reports whether the user is trialing, either via a generic trial
// on the user record or a trial window on the named subscription.
func (s *Service) OnTrial(ctx context.Context, user *models.User, name string) (bool, error) {
	if user.OnGenericTrial() {
		return true, nil
	}
	sub, err := s.Subscription(ctx, user, name)
	if err != nil {
		return false, err
	}
	return sub.OnTrial(), nil
}

// TrialEndsAt returns when the user's trial ends: the generic trial date on
// the user record when one is running, otherwise the named subscription's
// trial end. Nil when no trial applies.
func (s *Service) TrialEndsAt(ctx context.Context, user *models.User, name string) (*time.Time, error) {
	if user == nil {
		return nil, nil
	}
	if user.OnGenericTrial() {
		return user.TrialEndsAt, nil
	}
	sub, err := s.Subscription(ctx, user, name)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	return sub.TrialEndsAt, nil
}

package billable

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashierhq/cashier-backend/internal/charges"
	"github.com/cashierhq/cashier-backend/internal/subscriptions"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/enums"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

type stubCustomerOps struct{}

func (stubCustomerOps) CreateAsCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error) {
	return &razorpay.Customer{ID: "cust_stub"}, nil
}
func (stubCustomerOps) CreateOrGetCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error) {
	return &razorpay.Customer{ID: "cust_stub"}, nil
}
func (stubCustomerOps) UpdateCustomer(ctx context.Context, user *models.User, params razorpay.CustomerParams) (*razorpay.Customer, error) {
	return &razorpay.Customer{ID: "cust_stub"}, nil
}
func (stubCustomerOps) SyncDetails(ctx context.Context, user *models.User) (*razorpay.Customer, error) {
	return &razorpay.Customer{ID: "cust_stub"}, nil
}
func (stubCustomerOps) PreferredCurrency() string { return "INR" }

type stubChargeOps struct{}

func (stubChargeOps) Charge(ctx context.Context, user *models.User, amount decimal.Decimal, description string) (*charges.ChargeResult, error) {
	return &charges.ChargeResult{InvoiceID: "inv_stub"}, nil
}
func (stubChargeOps) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*razorpay.Refund, error) {
	return &razorpay.Refund{ID: "rfnd_stub"}, nil
}

type stubSubscriptionOps struct {
	sub               *models.Subscription
	deactivatePastDue bool
}

func (s *stubSubscriptionOps) NewSubscription(user *models.User, name, planID string) *subscriptions.Builder {
	return nil
}
func (s *stubSubscriptionOps) Find(ctx context.Context, userID uuid.UUID, name string) (*models.Subscription, error) {
	return s.sub, nil
}
func (s *stubSubscriptionOps) DeactivatePastDue() bool { return s.deactivatePastDue }

type stubReceiptOps struct {
	subs []models.Subscription
}

func (stubReceiptOps) Receipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	return nil, nil
}
func (s stubReceiptOps) Subscriptions(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	return s.subs, nil
}

func newBillable(t *testing.T, subs *stubSubscriptionOps) *Service {
	t.Helper()
	return newBillableWithHistory(t, subs, stubReceiptOps{})
}

func newBillableWithHistory(t *testing.T, subs *stubSubscriptionOps, history stubReceiptOps) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Customers:     stubCustomerOps{},
		Charges:       stubChargeOps{},
		Subscriptions: subs,
		Receipts:      history,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestNewServiceRequiresAllCapabilities(t *testing.T) {
	_, err := NewService(ServiceParams{
		Charges:       stubChargeOps{},
		Subscriptions: &stubSubscriptionOps{},
		Receipts:      stubReceiptOps{},
	})
	if err == nil {
		t.Fatal("expected error for missing customer ops")
	}
}

func TestSubscribedWithActiveSubscription(t *testing.T) {
	gatewayID := "sub_active"
	svc := newBillable(t, &stubSubscriptionOps{sub: &models.Subscription{
		ID:                     uuid.New(),
		RazorpaySubscriptionID: &gatewayID,
		PlanID:                 "plan_monthly",
		Status:                 enums.SubscriptionStatusActive,
		Quantity:               1,
	}})
	user := &models.User{ID: uuid.New()}

	subscribed, err := svc.Subscribed(context.Background(), user, "default", "")
	if err != nil {
		t.Fatalf("Subscribed: %v", err)
	}
	if !subscribed {
		t.Fatal("expected subscribed")
	}

	wrongPlan, err := svc.Subscribed(context.Background(), user, "default", "plan_yearly")
	if err != nil {
		t.Fatalf("Subscribed: %v", err)
	}
	if wrongPlan {
		t.Fatal("plan filter should exclude other plans")
	}
}

func TestSubscribedWithoutSubscription(t *testing.T) {
	svc := newBillable(t, &stubSubscriptionOps{})
	subscribed, err := svc.Subscribed(context.Background(), &models.User{ID: uuid.New()}, "default", "")
	if err != nil {
		t.Fatalf("Subscribed: %v", err)
	}
	if subscribed {
		t.Fatal("expected not subscribed")
	}
}

func TestSubscribedPastDueRespectsFlag(t *testing.T) {
	gatewayID := "sub_pending"
	pastDue := &models.Subscription{
		ID:                     uuid.New(),
		RazorpaySubscriptionID: &gatewayID,
		PlanID:                 "plan_monthly",
		Status:                 enums.SubscriptionStatusPending,
		Quantity:               1,
	}
	user := &models.User{ID: uuid.New()}

	lenient := newBillable(t, &stubSubscriptionOps{sub: pastDue})
	got, err := lenient.Subscribed(context.Background(), user, "default", "")
	if err != nil || !got {
		t.Fatalf("past due should stay subscribed by default: %v %v", got, err)
	}

	strict := newBillable(t, &stubSubscriptionOps{sub: pastDue, deactivatePastDue: true})
	got, err = strict.Subscribed(context.Background(), user, "default", "")
	if err != nil || got {
		t.Fatalf("past due should lose access when deactivated: %v %v", got, err)
	}
}

func TestOnPlanScansAllSubscriptions(t *testing.T) {
	gatewayID := "sub_named"
	history := stubReceiptOps{subs: []models.Subscription{
		{
			ID:                     uuid.New(),
			Name:                   "team",
			RazorpaySubscriptionID: &gatewayID,
			PlanID:                 "plan_team",
			Status:                 enums.SubscriptionStatusActive,
			Quantity:               5,
		},
	}}
	svc := newBillableWithHistory(t, &stubSubscriptionOps{}, history)
	user := &models.User{ID: uuid.New()}

	onPlan, err := svc.OnPlan(context.Background(), user, "plan_team")
	if err != nil {
		t.Fatalf("OnPlan: %v", err)
	}
	if !onPlan {
		t.Fatal("expected plan match on non-default subscription")
	}

	other, err := svc.OnPlan(context.Background(), user, "plan_solo")
	if err != nil {
		t.Fatalf("OnPlan: %v", err)
	}
	if other {
		t.Fatal("unexpected match for a plan the user is not on")
	}
}

func TestTrialEndsAtPrefersGenericTrial(t *testing.T) {
	trialEnd := time.Now().UTC().Add(48 * time.Hour)
	svc := newBillable(t, &stubSubscriptionOps{})
	user := &models.User{ID: uuid.New(), TrialEndsAt: &trialEnd}

	got, err := svc.TrialEndsAt(context.Background(), user, "default")
	if err != nil {
		t.Fatalf("TrialEndsAt: %v", err)
	}
	if got == nil || !got.Equal(trialEnd) {
		t.Fatalf("expected generic trial end, got %v", got)
	}

	none, err := svc.TrialEndsAt(context.Background(), &models.User{ID: uuid.New()}, "default")
	if err != nil {
		t.Fatalf("TrialEndsAt: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil without trial, got %v", none)
	}
}

func TestOnTrialPrefersGenericTrial(t *testing.T) {
	svc := newBillable(t, &stubSubscriptionOps{})
	trialEnd := time.Now().UTC().Add(24 * time.Hour)
	user := &models.User{ID: uuid.New(), TrialEndsAt: &trialEnd}

	onTrial, err := svc.OnTrial(context.Background(), user, "default")
	if err != nil {
		t.Fatalf("OnTrial: %v", err)
	}
	if !onTrial {
		t.Fatal("generic trial should count")
	}
}

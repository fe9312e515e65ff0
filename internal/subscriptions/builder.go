package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

// defaultTotalCount keeps the gateway subscription effectively perpetual.
// Razorpay requires a finite cycle count on create.
const defaultTotalCount = 999

// checkoutHashPlaceholder is injected into the return URL so the checkout
// layer can correlate the redirect back to the session that started it.
const checkoutHashPlaceholder = "{checkout_hash}"

// Builder accumulates options for a new subscription and registers it at the
// gateway. No local row is written here: the row is created when the
// subscription.authenticated webhook confirms the checkout.
type Builder struct {
	service *Service
	user    *models.User
	name    string
	planID  string

	quantity  int
	trialDays int
	skipTrial bool
	offerID   string
	returnURL string
	metadata  map[string]string
}

// NewSubscription starts a builder for the user's named subscription.
func (s *Service) NewSubscription(user *models.User, name, planID string) *Builder {
	if name == "" {
		name = models.DefaultSubscriptionName
	}
	return &Builder{
		service:  s,
		user:     user,
		name:     name,
		planID:   planID,
		quantity: 1,
	}
}

// Quantity sets the seat count billed each cycle.
func (b *Builder) Quantity(quantity int) *Builder {
	b.quantity = quantity
	return b
}

// TrialDays delays the first charge by the given number of days. Razorpay
// has no native trial, so the trial is simulated through start_at.
func (b *Builder) TrialDays(days int) *Builder {
	b.trialDays = days
	return b
}

// SkipTrial bills immediately even when the user is on a generic trial.
func (b *Builder) SkipTrial() *Builder {
	b.skipTrial = true
	b.trialDays = 0
	return b
}

// WithCoupon applies a gateway offer to the subscription's charges.
func (b *Builder) WithCoupon(offerID string) *Builder {
	b.offerID = offerID
	return b
}

// WithMetadata attaches custom notes to the gateway subscription.
func (b *Builder) WithMetadata(metadata map[string]string) *Builder {
	if b.metadata == nil {
		b.metadata = map[string]string{}
	}
	for k, v := range metadata {
		b.metadata[k] = v
	}
	return b
}

// ReturnTo is where the hosted checkout redirects after authorization. The
// given query parameter carries a checkout hash the return page can verify.
func (b *Builder) ReturnTo(url, param string) *Builder {
	if url == "" {
		return b
	}
	if param == "" {
		b.returnURL = url
		return b
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	b.returnURL = url + sep + param + "=" + checkoutHashPlaceholder
	return b
}

// Create registers the subscription at the gateway and returns its entity;
// Subscription.ShortURL is the hosted authorization link.
func (b *Builder) Create(ctx context.Context) (*razorpay.Subscription, error) {
	if b.user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	if strings.TrimSpace(b.planID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if b.quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	existing, err := b.service.billingRepo.FindSubscriptionByUserAndName(ctx, b.user.ID, b.name)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Ended() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a live subscription with this name already exists")
	}

	params := razorpay.SubscriptionCreateParams{
		PlanID:      b.planID,
		TotalCount:  defaultTotalCount,
		Quantity:    b.quantity,
		OfferID:     b.offerID,
		Notes:       b.buildNotes(),
		CallbackURL: b.returnURL,
	}
	if startAt := b.startAt(); startAt != nil {
		params.StartAt = startAt
	}

	return b.service.gateway.CreateSubscription(ctx, params)
}

func (b *Builder) startAt() *int64 {
	if b.skipTrial {
		return nil
	}
	if b.trialDays > 0 {
		ts := time.Now().UTC().AddDate(0, 0, b.trialDays).Unix()
		return &ts
	}
	if b.user.OnGenericTrial() {
		ts := b.user.TrialEndsAt.Unix()
		return &ts
	}
	return nil
}

func (b *Builder) buildNotes() map[string]string {
	notes := make(map[string]string, len(b.metadata)+3)
	for k, v := range b.metadata {
		notes[k] = v
	}
	// Reserved keys are written last: the webhook handlers correlate
	// subscriptions to users through them, so caller metadata must never
	// shadow them.
	notes["billable_id"] = b.user.ID.String()
	notes["billable_type"] = "user"
	notes["subscription_name"] = b.name
	return notes
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cashierhq/cashier-backend/pkg/enums"
)

// DefaultSubscriptionName is used when the caller does not name a
// subscription; most billables carry exactly one.
const DefaultSubscriptionName = "default"

// Subscription persists Razorpay subscription state per user. Rows are never
// hard-deleted; lifecycle is expressed through status and the nullable
// timestamps, and the effective state is always derived via the predicate
// methods below.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Name                   string                   `gorm:"column:name;not null;default:'default'"`
	RazorpaySubscriptionID *string                  `gorm:"column:razorpay_subscription_id;unique"`
	PlanID                 string                   `gorm:"column:plan_id;not null"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	Quantity               int                      `gorm:"column:quantity;not null;default:1"`
	TrialEndsAt            *time.Time               `gorm:"column:trial_ends_at"`
	PausedFrom             *time.Time               `gorm:"column:paused_from"`
	EndsAt                 *time.Time               `gorm:"column:ends_at"`
	Prorate                bool                     `gorm:"column:prorate;not null;default:false"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// GatewayID returns the remote subscription id, empty when not yet confirmed.
func (s *Subscription) GatewayID() string {
	if s == nil || s.RazorpaySubscriptionID == nil {
		return ""
	}
	return *s.RazorpaySubscriptionID
}

// OnTrial reports whether the subscription trial window is still open.
func (s *Subscription) OnTrial() bool {
	return s != nil && s.TrialEndsAt != nil && s.TrialEndsAt.After(time.Now().UTC())
}

// OnPausedGracePeriod reports whether a pause is scheduled but not yet
// effective.
func (s *Subscription) OnPausedGracePeriod() bool {
	return s != nil && s.PausedFrom != nil && s.PausedFrom.After(time.Now().UTC())
}

// OnGracePeriod reports whether a cancellation is scheduled but the paid-for
// window has not ended.
func (s *Subscription) OnGracePeriod() bool {
	return s != nil && s.EndsAt != nil && s.EndsAt.After(time.Now().UTC())
}

// Paused reports whether the gateway has the subscription paused.
func (s *Subscription) Paused() bool {
	return s != nil && s.Status == enums.SubscriptionStatusPaused
}

// PastDue reports whether payment collection is overdue.
func (s *Subscription) PastDue() bool {
	return s != nil && s.Status.PastDue()
}

// Halted reports whether the gateway stopped charging after repeated
// payment failures.
func (s *Subscription) Halted() bool {
	return s != nil && s.Status == enums.SubscriptionStatusHalted
}

// Cancelled reports whether a cancellation has been recorded. A subscription
// within its grace period is cancelled but still active.
func (s *Subscription) Cancelled() bool {
	return s != nil && s.EndsAt != nil
}

// Ended reports whether a cancelled subscription's grace period is over.
func (s *Subscription) Ended() bool {
	return s.Cancelled() && !s.OnGracePeriod()
}

// Active reports whether the subscription currently entitles the user.
// deactivatePastDue makes pending (past-due) subscriptions inactive.
func (s *Subscription) Active(deactivatePastDue bool) bool {
	if s == nil {
		return false
	}
	if s.EndsAt != nil && !s.OnGracePeriod() && !s.OnPausedGracePeriod() {
		return false
	}
	if s.Status == enums.SubscriptionStatusPaused || s.Status == enums.SubscriptionStatusHalted {
		return false
	}
	if deactivatePastDue && s.PastDue() {
		return false
	}
	return true
}

// Valid reports whether the subscription is in any state that should grant
// access: active, trialing, or inside a grace period.
func (s *Subscription) Valid(deactivatePastDue bool) bool {
	if s == nil {
		return false
	}
	return s.Active(deactivatePastDue) || s.OnTrial() || s.OnPausedGracePeriod() || s.OnGracePeriod()
}

// Recurring reports whether the subscription is billing on-cycle with no
// trial, pause, or cancellation in play.
func (s *Subscription) Recurring() bool {
	if s == nil {
		return false
	}
	return !s.OnTrial() && !s.Paused() && !s.OnPausedGracePeriod() && !s.Cancelled()
}

// HasPlan reports whether the subscription is for the given gateway plan.
func (s *Subscription) HasPlan(planID string) bool {
	return s != nil && planID != "" && s.PlanID == planID
}

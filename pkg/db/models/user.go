package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the billable entity. Gateway linkage lives on the row so a user
// can be correlated to their Razorpay customer without a remote call.
type User struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string     `gorm:"column:name;not null"`
	Email              string     `gorm:"type:text;not null;uniqueIndex"`
	Phone              *string    `gorm:"column:phone"`
	RazorpayCustomerID *string    `gorm:"column:razorpay_customer_id;index"`
	TrialEndsAt        *time.Time `gorm:"column:trial_ends_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// HasCustomer reports whether the user already has a gateway customer.
func (u *User) HasCustomer() bool {
	return u != nil && u.RazorpayCustomerID != nil && *u.RazorpayCustomerID != ""
}

// OnGenericTrial reports whether the model-level trial (no subscription yet)
// is still running.
func (u *User) OnGenericTrial() bool {
	return u != nil && u.TrialEndsAt != nil && u.TrialEndsAt.After(time.Now().UTC())
}

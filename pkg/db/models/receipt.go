package models

import (
	"time"

	"github.com/google/uuid"
)

// Receipt records one successful invoice payment. The gateway order id is the
// idempotency key: a receipt is created exactly once per order and never
// mutated afterwards.
type Receipt struct {
	ID                     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                 uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	RazorpaySubscriptionID *string   `gorm:"column:razorpay_subscription_id;index"`
	PaymentID              string    `gorm:"column:payment_id;not null"`
	OrderID                string    `gorm:"column:order_id;not null;unique"`
	Amount                 int64     `gorm:"column:amount;not null"`
	Tax                    int64     `gorm:"column:tax;not null;default:0"`
	Currency               string    `gorm:"column:currency;type:char(3);not null"`
	Quantity               int       `gorm:"column:quantity;not null;default:1"`
	ReceiptURL             string    `gorm:"column:receipt_url;unique"`
	PaidAt                 time.Time `gorm:"column:paid_at;not null"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cashierhq/cashier-backend/pkg/db"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	FindSubscriptionByUserAndName(ctx context.Context, userID uuid.UUID, name string) (*models.Subscription, error)
	FindSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.Subscription, error)
	RecordReceipt(ctx context.Context, receipt *models.Receipt) (*models.Receipt, bool, error)
	FindReceiptByOrderID(ctx context.Context, orderID string) (*models.Receipt, error)
	ListReceiptsByUser(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindSubscriptionByUserAndName(ctx context.Context, userID uuid.UUID, name string) (*models.Subscription, error) {
	if name == "" {
		name = models.DefaultSubscriptionName
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Order("created_at DESC").
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*models.Subscription, error) {
	if gatewaySubscriptionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("razorpay_subscription_id = ?", gatewaySubscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// RecordReceipt stores a payment receipt exactly once per gateway order id.
// It returns the stored row and whether this call created it; replays of the
// same order return the existing row so webhook retries stay harmless.
func (r *repository) RecordReceipt(ctx context.Context, receipt *models.Receipt) (*models.Receipt, bool, error) {
	existing, err := r.FindReceiptByOrderID(ctx, receipt.OrderID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := r.db.WithContext(ctx).Create(receipt).Error; err != nil {
		// A concurrent webhook delivery may have won the insert race.
		if db.IsUniqueViolation(err, "order_id") {
			existing, findErr := r.FindReceiptByOrderID(ctx, receipt.OrderID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return receipt, true, nil
}

func (r *repository) FindReceiptByOrderID(ctx context.Context, orderID string) (*models.Receipt, error) {
	if orderID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&receipt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) ListReceiptsByUser(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	var receipts []models.Receipt
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("paid_at DESC").
		Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/enums"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	subscriptions := `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT 'default',
  razorpay_subscription_id TEXT UNIQUE,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  quantity INTEGER NOT NULL DEFAULT 1,
  trial_ends_at DATETIME,
  paused_from DATETIME,
  ends_at DATETIME,
  prorate INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	receipts := `
CREATE TABLE IF NOT EXISTS receipts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  razorpay_subscription_id TEXT,
  payment_id TEXT NOT NULL,
  order_id TEXT NOT NULL UNIQUE,
  amount INTEGER NOT NULL,
  tax INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  receipt_url TEXT UNIQUE,
  paid_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(subscriptions).Error)
	require.NoError(t, db.Exec(receipts).Error)
	return db
}

func newSubscription(t *testing.T, db *gorm.DB, userID uuid.UUID, name, gatewayID string) *models.Subscription {
	t.Helper()

	sub := &models.Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     name,
		PlanID:   "plan_monthly",
		Status:   enums.SubscriptionStatusActive,
		Quantity: 1,
	}
	if gatewayID != "" {
		sub.RazorpaySubscriptionID = &gatewayID
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func newReceipt(t *testing.T, db *gorm.DB, userID uuid.UUID, orderID string, paidAt time.Time) *models.Receipt {
	t.Helper()

	receipt := &models.Receipt{
		ID:         uuid.New(),
		UserID:     userID,
		PaymentID:  "pay_" + orderID,
		OrderID:    orderID,
		Amount:     49900,
		Currency:   "INR",
		Quantity:   1,
		ReceiptURL: "https://rzp.io/i/" + orderID,
		PaidAt:     paidAt,
	}
	require.NoError(t, db.Create(receipt).Error)
	return receipt
}

func TestFindSubscriptionByGatewayID(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := newSubscription(t, db, uuid.New(), "default", "sub_FindByGateway1")

	found, err := repo.FindSubscriptionByGatewayID(ctx, "sub_FindByGateway1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sub.ID, found.ID)

	missing, err := repo.FindSubscriptionByGatewayID(ctx, "sub_does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindSubscriptionByUserAndName(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	newSubscription(t, db, userID, "default", "sub_ByName1")
	premium := newSubscription(t, db, userID, "premium", "sub_ByName2")

	found, err := repo.FindSubscriptionByUserAndName(ctx, userID, "premium")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, premium.ID, found.ID)

	// empty name falls back to the default subscription
	fallback, err := repo.FindSubscriptionByUserAndName(ctx, userID, "")
	require.NoError(t, err)
	require.NotNil(t, fallback)
	assert.Equal(t, "default", fallback.Name)

	missing, err := repo.FindSubscriptionByUserAndName(ctx, uuid.New(), "default")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateSubscriptionPersistsStatus(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	sub := newSubscription(t, db, uuid.New(), "default", "sub_Update1")
	sub.Status = enums.SubscriptionStatusHalted
	endsAt := time.Now().UTC().Add(24 * time.Hour)
	sub.EndsAt = &endsAt
	require.NoError(t, repo.UpdateSubscription(ctx, sub))

	found, err := repo.FindSubscriptionByGatewayID(ctx, "sub_Update1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.SubscriptionStatusHalted, found.Status)
	require.NotNil(t, found.EndsAt)
}

func TestListReceiptsByUserNewestFirst(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	base := time.Now().UTC().Add(-48 * time.Hour)
	newReceipt(t, db, userID, "order_list_old", base)
	newReceipt(t, db, userID, "order_list_new", base.Add(24*time.Hour))
	newReceipt(t, db, uuid.New(), "order_list_other", base)

	receipts, err := repo.ListReceiptsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "order_list_new", receipts[0].OrderID)
	assert.Equal(t, "order_list_old", receipts[1].OrderID)
}

func TestRecordReceiptInsertsOnce(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	first := &models.Receipt{
		ID:        uuid.New(),
		UserID:    userID,
		PaymentID: "pay_first",
		OrderID:   "order_record_1",
		Amount:    49900,
		Currency:  "INR",
		Quantity:  1,
		PaidAt:    time.Now().UTC(),
	}
	stored, created, err := repo.RecordReceipt(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, stored.ID)

	replay := &models.Receipt{
		ID:        uuid.New(),
		UserID:    userID,
		PaymentID: "pay_retry",
		OrderID:   "order_record_1",
		Amount:    49900,
		Currency:  "INR",
		Quantity:  1,
		PaidAt:    time.Now().UTC(),
	}
	stored, created, err = repo.RecordReceipt(ctx, replay)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, stored)
	assert.Equal(t, "pay_first", stored.PaymentID)

	receipts, err := repo.ListReceiptsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
}

func TestWithTxRollbackLeavesNoRows(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	gatewayID := "sub_TxRollback1"
	err := db.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		sub := &models.Subscription{
			ID:                     uuid.New(),
			UserID:                 uuid.New(),
			Name:                   "default",
			RazorpaySubscriptionID: &gatewayID,
			PlanID:                 "plan_monthly",
			Status:                 enums.SubscriptionStatusActive,
			Quantity:               1,
		}
		if err := txRepo.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	found, err := repo.FindSubscriptionByGatewayID(ctx, gatewayID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

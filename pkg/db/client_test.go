package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID      int
	OrderID string `gorm:"unique"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{OrderID: "order_committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{OrderID: "order_rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)

	if err := db.Create(&testModel{OrderID: "order_dup"}).Error; err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	err := db.Create(&testModel{OrderID: "order_dup"}).Error
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if !IsUniqueViolation(err, "order_id") {
		t.Fatalf("expected unique violation match, got %v", err)
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error should not match")
	}
}

func TestIsUniqueViolationPostgresErrors(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "receipts_order_id_key"}
	if !IsUniqueViolation(dup, "order_id") {
		t.Fatal("pg unique violation on matching constraint should match")
	}
	if IsUniqueViolation(dup, "receipt_url") {
		t.Fatal("pg unique violation on a different constraint should not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503", ConstraintName: "receipts_order_id_key"}, "order_id") {
		t.Fatal("non-23505 sqlstate should not match")
	}

	pqDup := &pq.Error{Code: "23505", Constraint: "receipts_order_id_key"}
	if !IsUniqueViolation(pqDup, "order_id") {
		t.Fatal("pq unique violation on matching constraint should match")
	}
}

func TestIsUniqueViolationIgnoresUnrelatedErrors(t *testing.T) {
	if IsUniqueViolation(errors.New(`column "order_id" does not exist`), "order_id") {
		t.Fatal("an unrelated error mentioning the column should not match")
	}
}

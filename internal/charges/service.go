package charges

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

// Gateway is the slice of the Razorpay client used for one-off charges.
type Gateway interface {
	CreateInvoice(ctx context.Context, params razorpay.InvoiceCreateParams) (*razorpay.Invoice, error)
	FetchPayment(ctx context.Context, id string) (*razorpay.Payment, error)
	RefundPayment(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*razorpay.Refund, error)
	Currency() string
}

// ServiceParams groups dependencies for the charge service.
type ServiceParams struct {
	Gateway Gateway
}

// Service issues one-off invoices and refunds through the gateway.
type Service struct {
	gateway Gateway
}

// NewService builds a charge service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, errors.New(errors.CodeInternal, "gateway is required")
	}
	return &Service{gateway: params.Gateway}, nil
}

// ChargeResult describes the invoice raised for a one-off charge.
type ChargeResult struct {
	InvoiceID string
	ShortURL  string
	Amount    int64
	Currency  string
	Status    string
}

// Charge raises a gateway invoice against the user for an ad-hoc amount.
// Amounts are given in major units and converted to the currency's minor
// units before hitting the gateway.
func (s *Service) Charge(ctx context.Context, user *models.User, amount decimal.Decimal, description string) (*ChargeResult, error) {
	if user == nil {
		return nil, errors.New(errors.CodeValidation, "user is required")
	}
	if !user.HasCustomer() {
		return nil, errors.New(errors.CodeStateConflict, "user is not a razorpay customer yet")
	}
	minor := toMinorUnits(amount)
	if minor <= 0 {
		return nil, errors.New(errors.CodeValidation, "charge amount must be positive")
	}
	title := strings.TrimSpace(description)
	if title == "" {
		title = "One-off charge"
	}

	invoice, err := s.gateway.CreateInvoice(ctx, razorpay.InvoiceCreateParams{
		Description:  title,
		CustomerID:   *user.RazorpayCustomerID,
		Currency:     s.gateway.Currency(),
		LineItemName: title,
		Amount:       minor,
		Quantity:     1,
		EmailNotify:  true,
	})
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		InvoiceID: invoice.ID,
		ShortURL:  invoice.ShortURL,
		Amount:    invoice.Amount,
		Currency:  s.gateway.Currency(),
		Status:    invoice.Status,
	}, nil
}

// Refund returns money on a captured payment. A zero amount refunds the
// full captured value.
func (s *Service) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*razorpay.Refund, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New(errors.CodeValidation, "payment id is required")
	}
	minor := toMinorUnits(amount)
	if minor < 0 {
		return nil, errors.New(errors.CodeValidation, "refund amount cannot be negative")
	}
	var notes map[string]string
	if strings.TrimSpace(reason) != "" {
		notes = map[string]string{"reason": strings.TrimSpace(reason)}
	}
	return s.gateway.RefundPayment(ctx, paymentID, minor, notes)
}

// FindPayment fetches a payment entity from the gateway.
func (s *Service) FindPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New(errors.CodeValidation, "payment id is required")
	}
	return s.gateway.FetchPayment(ctx, paymentID)
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

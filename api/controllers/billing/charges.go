package billing

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cashierhq/cashier-backend/api/responses"
	"github.com/cashierhq/cashier-backend/api/validators"
	chargesvc "github.com/cashierhq/cashier-backend/internal/charges"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

// ChargesService issues one-off invoices and refunds against the gateway.
type ChargesService interface {
	Charge(ctx context.Context, user *models.User, amount decimal.Decimal, description string) (*chargesvc.ChargeResult, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*razorpay.Refund, error)
}

type createChargeRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
}

type createRefundRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Reason    string `json:"reason"`
}

type chargeResponse struct {
	InvoiceID string `json:"invoice_id"`
	ShortURL  string `json:"short_url"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal number")
	}
	return amount, nil
}

// CreateCharge raises a one-off invoice and returns its payment link.
func CreateCharge(svc ChargesService, users UserStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		var req createChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		user, err := resolveUser(ctx, users, req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Charge(ctx, user, amount, req.Description)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, chargeResponse{
			InvoiceID: result.InvoiceID,
			ShortURL:  result.ShortURL,
			Amount:    result.Amount,
			Currency:  result.Currency,
			Status:    result.Status,
		})
	}
}

// CreateRefund refunds part or all of a captured payment.
func CreateRefund(svc ChargesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		var req createRefundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		refund, err := svc.Refund(ctx, req.PaymentID, amount, req.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, refundResponse{
			ID:     refund.ID,
			Status: refund.Status,
			Amount: refund.Amount,
		})
	}
}

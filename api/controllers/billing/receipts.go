package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cashierhq/cashier-backend/api/responses"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/logger"
)

// ReceiptsService lists recorded invoice payments.
type ReceiptsService interface {
	Receipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error)
}

type receiptResponse struct {
	ID                     string    `json:"id"`
	RazorpaySubscriptionID string    `json:"razorpay_subscription_id,omitempty"`
	PaymentID              string    `json:"payment_id"`
	OrderID                string    `json:"order_id"`
	Amount                 int64     `json:"amount"`
	Tax                    int64     `json:"tax"`
	Currency               string    `json:"currency"`
	Quantity               int       `json:"quantity"`
	ReceiptURL             string    `json:"receipt_url,omitempty"`
	PaidAt                 time.Time `json:"paid_at"`
}

type receiptListResponse struct {
	Receipts []receiptResponse `json:"receipts"`
}

// ListReceipts returns the user's receipts, newest first.
func ListReceipts(svc ReceiptsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid uuid"))
			return
		}

		receipts, err := svc.Receipts(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := receiptListResponse{Receipts: make([]receiptResponse, 0, len(receipts))}
		for i := range receipts {
			rec := &receipts[i]
			item := receiptResponse{
				ID:         rec.ID.String(),
				PaymentID:  rec.PaymentID,
				OrderID:    rec.OrderID,
				Amount:     rec.Amount,
				Tax:        rec.Tax,
				Currency:   rec.Currency,
				Quantity:   rec.Quantity,
				ReceiptURL: rec.ReceiptURL,
				PaidAt:     rec.PaidAt,
			}
			if rec.RazorpaySubscriptionID != nil {
				item.RazorpaySubscriptionID = *rec.RazorpaySubscriptionID
			}
			resp.Receipts = append(resp.Receipts, item)
		}
		responses.WriteSuccess(w, resp)
	}
}

package razorpaywebhook

import (
	"encoding/json"

	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
)

// Event is the decoded webhook envelope. Razorpay wraps every entity in the
// payload under payload.<name>.entity.
type Event struct {
	Entity  string  `json:"entity"`
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
	Created int64   `json:"created_at"`
}

// Payload carries the entities attached to the event.
type Payload struct {
	Subscription *envelope[SubscriptionEntity] `json:"subscription,omitempty"`
	Payment      *envelope[PaymentEntity]      `json:"payment,omitempty"`
	Invoice      *envelope[InvoiceEntity]      `json:"invoice,omitempty"`
}

type envelope[T any] struct {
	Entity T `json:"entity"`
}

// SubscriptionEntity is the gateway subscription as delivered in webhooks.
type SubscriptionEntity struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Quantity   int    `json:"quantity"`
	StartAt    *int64 `json:"start_at"`
	ChargeAt   *int64 `json:"charge_at"`
	CurrentEnd *int64 `json:"current_end"`
	EndedAt    *int64 `json:"ended_at"`
	PausedAt   *int64 `json:"paused_at"`
	TotalCount int    `json:"total_count"`
	PaidCount  int    `json:"paid_count"`
	Notes      Notes  `json:"notes"`
}

// PaymentEntity is the gateway payment as delivered in webhooks.
type PaymentEntity struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
	Tax       int64  `json:"tax"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	CreatedAt int64  `json:"created_at"`
	Notes     Notes  `json:"notes"`
}

// InvoiceEntity is the gateway invoice as delivered in webhooks.
type InvoiceEntity struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	PaymentID      string `json:"payment_id"`
	SubscriptionID string `json:"subscription_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	TaxAmount      int64  `json:"tax_amount"`
	Currency       string `json:"currency"`
	ShortURL       string `json:"short_url"`
	PaidAt         *int64 `json:"paid_at"`
	Notes          Notes  `json:"notes"`
}

// Notes is the free-form key/value block on gateway entities. An entity with
// no notes arrives as an empty JSON array rather than an object, so decoding
// has to accept both shapes.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &asMap); err == nil {
		out := make(Notes, len(asMap))
		for k, raw := range asMap {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				out[k] = s
				continue
			}
			// non-string note values are kept verbatim
			out[k] = string(raw)
		}
		*n = out
		return nil
	}

	var asList []json.RawMessage
	if err := json.Unmarshal(data, &asList); err == nil {
		*n = Notes{}
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "notes must be an object or an empty array")
}

// ParseEvent decodes a raw webhook body into an Event.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook event")
	}
	return &event, nil
}

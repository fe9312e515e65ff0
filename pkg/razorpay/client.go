package razorpay

import (
	"context"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/cashierhq/cashier-backend/pkg/config"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
)

// Client wraps the Razorpay SDK behind typed params and entities. The SDK
// itself speaks map[string]interface{} and does not thread contexts; the ctx
// arguments exist for call-site symmetry with the rest of the codebase.
type Client struct {
	api           *rzp.Client
	webhookSecret string
	currency      string
}

func New(cfg config.RazorpayConfig) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "razorpay key id and secret are required")
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &Client{
		api:           rzp.NewClient(cfg.KeyID, cfg.KeySecret),
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
	}, nil
}

// Currency returns the configured default billing currency.
func (c *Client) Currency() string {
	return c.currency
}

// SubscriptionCreateParams shapes a subscription create call.
type SubscriptionCreateParams struct {
	PlanID     string
	TotalCount int
	Quantity   int
	StartAt    *int64
	OfferID    string
	Notes      map[string]string

	// CallbackURL is carried in notes; the hosted page redirects there.
	CallbackURL string
}

func (p SubscriptionCreateParams) toMap() map[string]interface{} {
	data := map[string]interface{}{
		"plan_id":     p.PlanID,
		"total_count": p.TotalCount,
	}
	if p.Quantity > 0 {
		data["quantity"] = p.Quantity
	}
	if p.StartAt != nil {
		data["start_at"] = *p.StartAt
	}
	if p.OfferID != "" {
		data["offer_id"] = p.OfferID
	}
	notes := map[string]interface{}{}
	for k, v := range p.Notes {
		notes[k] = strings.TrimSpace(v)
	}
	if p.CallbackURL != "" {
		notes["callback_url"] = p.CallbackURL
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	return data
}

// SubscriptionUpdateParams shapes quantity/plan changes. Prorate maps to the
// gateway's schedule_change_at: proration applies the change now, otherwise
// it lands at cycle end.
type SubscriptionUpdateParams struct {
	PlanID   string
	Quantity int
	Prorate  bool
}

func (p SubscriptionUpdateParams) toMap() map[string]interface{} {
	data := map[string]interface{}{}
	if p.PlanID != "" {
		data["plan_id"] = p.PlanID
	}
	if p.Quantity > 0 {
		data["quantity"] = p.Quantity
	}
	if p.Prorate {
		data["schedule_change_at"] = "now"
	} else {
		data["schedule_change_at"] = "cycle_end"
	}
	return data
}

// Subscription is the subset of the gateway subscription entity the service
// consumes.
type Subscription struct {
	ID         string
	PlanID     string
	Status     string
	Quantity   int
	ShortURL   string
	StartAt    *int64
	CurrentEnd *int64
	EndAt      *int64
	PausedAt   *int64
}

func subscriptionFromMap(data map[string]interface{}) *Subscription {
	return &Subscription{
		ID:         asString(data["id"]),
		PlanID:     asString(data["plan_id"]),
		Status:     asString(data["status"]),
		Quantity:   int(asInt64(data["quantity"])),
		ShortURL:   asString(data["short_url"]),
		StartAt:    asInt64Ptr(data["start_at"]),
		CurrentEnd: asInt64Ptr(data["current_end"]),
		EndAt:      asInt64Ptr(data["end_at"]),
		PausedAt:   asInt64Ptr(data["paused_at"]),
	}
}

func (c *Client) CreateSubscription(_ context.Context, p SubscriptionCreateParams) (*Subscription, error) {
	if p.PlanID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	data, err := c.api.Subscription.Create(p.toMap(), nil)
	if err != nil {
		return nil, gatewayErr(err, "create subscription")
	}
	return subscriptionFromMap(data), nil
}

func (c *Client) FetchSubscription(_ context.Context, id string) (*Subscription, error) {
	data, err := c.api.Subscription.Fetch(id, nil, nil)
	if err != nil {
		return nil, gatewayErr(err, "fetch subscription")
	}
	return subscriptionFromMap(data), nil
}

func (c *Client) UpdateSubscription(_ context.Context, id string, p SubscriptionUpdateParams) (*Subscription, error) {
	data, err := c.api.Subscription.Update(id, p.toMap(), nil)
	if err != nil {
		return nil, gatewayErr(err, "update subscription")
	}
	return subscriptionFromMap(data), nil
}

func (c *Client) PauseSubscription(_ context.Context, id string) (*Subscription, error) {
	data, err := c.api.Subscription.Pause(id, map[string]interface{}{"pause_at": "now"}, nil)
	if err != nil {
		return nil, gatewayErr(err, "pause subscription")
	}
	return subscriptionFromMap(data), nil
}

func (c *Client) ResumeSubscription(_ context.Context, id string) (*Subscription, error) {
	data, err := c.api.Subscription.Resume(id, map[string]interface{}{"resume_at": "now"}, nil)
	if err != nil {
		return nil, gatewayErr(err, "resume subscription")
	}
	return subscriptionFromMap(data), nil
}

func (c *Client) CancelSubscription(_ context.Context, id string, atCycleEnd bool) (*Subscription, error) {
	cancelAtCycleEnd := 0
	if atCycleEnd {
		cancelAtCycleEnd = 1
	}
	data, err := c.api.Subscription.Cancel(id, map[string]interface{}{"cancel_at_cycle_end": cancelAtCycleEnd}, nil)
	if err != nil {
		return nil, gatewayErr(err, "cancel subscription")
	}
	return subscriptionFromMap(data), nil
}

// Payment is the subset of the gateway payment entity the service consumes.
type Payment struct {
	ID           string
	Amount       int64
	Currency     string
	Method       string
	CardNetwork  string
	CardLastFour string
}

func paymentFromMap(data map[string]interface{}) *Payment {
	p := &Payment{
		ID:       asString(data["id"]),
		Amount:   asInt64(data["amount"]),
		Currency: asString(data["currency"]),
		Method:   asString(data["method"]),
	}
	if card, ok := data["card"].(map[string]interface{}); ok {
		p.CardNetwork = asString(card["network"])
		p.CardLastFour = asString(card["last4"])
	}
	return p
}

func (c *Client) FetchPayment(_ context.Context, id string) (*Payment, error) {
	data, err := c.api.Payment.Fetch(id, nil, nil)
	if err != nil {
		return nil, gatewayErr(err, "fetch payment")
	}
	return paymentFromMap(data), nil
}

// Refund is the subset of the gateway refund entity the service consumes.
type Refund struct {
	ID     string
	Status string
	Amount int64
}

func (c *Client) RefundPayment(_ context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	data := map[string]interface{}{}
	if len(notes) > 0 {
		noteData := map[string]interface{}{}
		for k, v := range notes {
			noteData[k] = v
		}
		data["notes"] = noteData
	}
	resp, err := c.api.Payment.Refund(paymentID, int(amount), data, nil)
	if err != nil {
		return nil, gatewayErr(err, "refund payment")
	}
	return &Refund{
		ID:     asString(resp["id"]),
		Status: asString(resp["status"]),
		Amount: asInt64(resp["amount"]),
	}, nil
}

// InvoiceCreateParams shapes a one-off invoice with a single line item.
type InvoiceCreateParams struct {
	Description   string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	Currency      string
	LineItemName  string
	Amount        int64
	Quantity      int
	EmailNotify   bool
}

func (p InvoiceCreateParams) toMap() map[string]interface{} {
	item := map[string]interface{}{
		"name":   p.LineItemName,
		"amount": p.Amount,
	}
	if p.Currency != "" {
		item["currency"] = p.Currency
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}
	item["quantity"] = qty

	data := map[string]interface{}{
		"type":       "invoice",
		"line_items": []interface{}{item},
	}
	if p.Description != "" {
		data["description"] = p.Description
	}
	if p.Currency != "" {
		data["currency"] = p.Currency
	}
	if p.CustomerID != "" {
		data["customer_id"] = p.CustomerID
	} else if p.CustomerName != "" || p.CustomerEmail != "" {
		data["customer"] = map[string]interface{}{
			"name":  p.CustomerName,
			"email": p.CustomerEmail,
		}
	}
	notify := 0
	if p.EmailNotify {
		notify = 1
	}
	data["email_notify"] = notify
	return data
}

// Invoice is the subset of the gateway invoice entity the service consumes.
type Invoice struct {
	ID       string
	Status   string
	ShortURL string
	Amount   int64
}

func (c *Client) CreateInvoice(_ context.Context, p InvoiceCreateParams) (*Invoice, error) {
	if p.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}
	data, err := c.api.Invoice.Create(p.toMap(), nil)
	if err != nil {
		return nil, gatewayErr(err, "create invoice")
	}
	return &Invoice{
		ID:       asString(data["id"]),
		Status:   asString(data["status"]),
		ShortURL: asString(data["short_url"]),
		Amount:   asInt64(data["amount"]),
	}, nil
}

// CustomerParams shapes customer create/update calls.
type CustomerParams struct {
	Name         string
	Email        string
	Contact      string
	FailExisting bool
	Notes        map[string]string
}

func (p CustomerParams) toMap() map[string]interface{} {
	data := map[string]interface{}{}
	if p.Name != "" {
		data["name"] = p.Name
	}
	if p.Email != "" {
		data["email"] = p.Email
	}
	if p.Contact != "" {
		data["contact"] = p.Contact
	}
	failExisting := "0"
	if p.FailExisting {
		failExisting = "1"
	}
	data["fail_existing"] = failExisting
	if len(p.Notes) > 0 {
		notes := map[string]interface{}{}
		for k, v := range p.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}
	return data
}

// Customer is the subset of the gateway customer entity the service consumes.
type Customer struct {
	ID      string
	Name    string
	Email   string
	Contact string
}

func customerFromMap(data map[string]interface{}) *Customer {
	return &Customer{
		ID:      asString(data["id"]),
		Name:    asString(data["name"]),
		Email:   asString(data["email"]),
		Contact: asString(data["contact"]),
	}
}

func (c *Client) CreateCustomer(_ context.Context, p CustomerParams) (*Customer, error) {
	data, err := c.api.Customer.Create(p.toMap(), nil)
	if err != nil {
		return nil, gatewayErr(err, "create customer")
	}
	return customerFromMap(data), nil
}

func (c *Client) UpdateCustomer(_ context.Context, id string, p CustomerParams) (*Customer, error) {
	data, err := c.api.Customer.Edit(id, p.toMap(), nil)
	if err != nil {
		return nil, gatewayErr(err, "update customer")
	}
	return customerFromMap(data), nil
}

func (c *Client) FetchCustomer(_ context.Context, id string) (*Customer, error) {
	data, err := c.api.Customer.Fetch(id, nil, nil)
	if err != nil {
		return nil, gatewayErr(err, "fetch customer")
	}
	return customerFromMap(data), nil
}

func gatewayErr(err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("razorpay: %s", op))
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func asInt64Ptr(v interface{}) *int64 {
	if v == nil {
		return nil
	}
	n := asInt64(v)
	if n == 0 {
		return nil
	}
	return &n
}

package razorpaywebhook

import (
	"testing"

	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
)

func TestParseEventSubscriptionPayload(t *testing.T) {
	body := []byte(`{
		"entity": "event",
		"event": "subscription.charged",
		"payload": {
			"subscription": {
				"entity": {
					"id": "sub_00000000000001",
					"plan_id": "plan_00000000000001",
					"status": "active",
					"quantity": 2,
					"current_end": 1893456000,
					"notes": {"billable_id": "abc", "subscription_name": "default"}
				}
			},
			"payment": {
				"entity": {
					"id": "pay_00000000000001",
					"order_id": "order_00000000000001",
					"amount": 49900,
					"currency": "INR",
					"method": "card"
				}
			}
		},
		"created_at": 1755000000
	}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.Event != "subscription.charged" {
		t.Fatalf("unexpected event %q", event.Event)
	}
	sub := event.Payload.Subscription.Entity
	if sub.ID != "sub_00000000000001" || sub.Quantity != 2 {
		t.Fatalf("subscription entity wrong: %+v", sub)
	}
	if sub.Notes["billable_id"] != "abc" {
		t.Fatalf("notes not decoded: %v", sub.Notes)
	}
	if sub.CurrentEnd == nil || *sub.CurrentEnd != 1893456000 {
		t.Fatalf("current_end wrong: %v", sub.CurrentEnd)
	}
	pay := event.Payload.Payment.Entity
	if pay.OrderID != "order_00000000000001" || pay.Amount != 49900 {
		t.Fatalf("payment entity wrong: %+v", pay)
	}
}

func TestParseEventNotesAsEmptyArray(t *testing.T) {
	body := []byte(`{
		"event": "subscription.updated",
		"payload": {
			"subscription": {"entity": {"id": "sub_1", "notes": []}}
		}
	}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	notes := event.Payload.Subscription.Entity.Notes
	if notes == nil || len(notes) != 0 {
		t.Fatalf("empty-array notes should decode to an empty map: %v", notes)
	}
}

func TestParseEventNonStringNoteValues(t *testing.T) {
	body := []byte(`{
		"event": "subscription.updated",
		"payload": {
			"subscription": {"entity": {"id": "sub_1", "notes": {"seats": 4}}}
		}
	}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if got := event.Payload.Subscription.Entity.Notes["seats"]; got != "4" {
		t.Fatalf("numeric note should keep its text form, got %q", got)
	}
}

func TestParseEventMalformedBody(t *testing.T) {
	_, err := ParseEvent([]byte(`{"event": `))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

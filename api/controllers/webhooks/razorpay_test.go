package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	razorpaywebhook "github.com/cashierhq/cashier-backend/internal/webhooks/razorpay"
)

type fakeDispatcher struct {
	outcome razorpaywebhook.Outcome
	err     error
	calls   int
	last    *razorpaywebhook.Event
}

func (f *fakeDispatcher) Dispatch(_ context.Context, event *razorpaywebhook.Event) (razorpaywebhook.Outcome, error) {
	f.calls++
	f.last = event
	return f.outcome, f.err
}

type fakeVerifier struct {
	valid bool
}

func (f *fakeVerifier) VerifyWebhookSignature(_ []byte, _ string) bool {
	return f.valid
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return "cashier:idempotency:" + scope + ":" + id
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func newTestGuard(t *testing.T) (*razorpaywebhook.IdempotencyGuard, *inMemoryStore) {
	t.Helper()
	store := newInMemoryStore()
	guard, err := razorpaywebhook.NewIdempotencyGuard(store, time.Minute, "razorpay-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard, store
}

func postWebhook(t *testing.T, handler http.HandlerFunc, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/razorpay/webhook", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRazorpayWebhook_HandledAndIdempotent(t *testing.T) {
	service := &fakeDispatcher{outcome: razorpaywebhook.OutcomeHandled}
	guard, _ := newTestGuard(t)
	handler := RazorpayWebhook(service, &fakeVerifier{valid: true}, true, guard, nil)

	body := []byte(`{"entity":"event","event":"subscription.activated","payload":{}}`)
	headers := map[string]string{
		"X-Razorpay-Signature": "sig",
		"X-Razorpay-Event-Id":  "evt_1",
	}

	rec := postWebhook(t, handler, body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Webhook Handled" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected dispatcher called once, got %d", service.calls)
	}
	if service.last == nil || service.last.Event != "subscription.activated" {
		t.Fatalf("dispatcher received wrong event: %+v", service.last)
	}

	rec2 := postWebhook(t, handler, body, headers)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate delivery should not re-dispatch, got %d calls", service.calls)
	}
}

func TestRazorpayWebhook_InvalidSignature(t *testing.T) {
	service := &fakeDispatcher{outcome: razorpaywebhook.OutcomeHandled}
	guard, _ := newTestGuard(t)
	handler := RazorpayWebhook(service, &fakeVerifier{valid: false}, true, guard, nil)

	rec := postWebhook(t, handler, []byte(`{"event":"invoice.paid"}`), map[string]string{
		"X-Razorpay-Signature": "bad",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("dispatcher should not run on invalid signature")
	}
}

func TestRazorpayWebhook_SignatureCheckDisabled(t *testing.T) {
	service := &fakeDispatcher{outcome: razorpaywebhook.OutcomeHandled}
	guard, _ := newTestGuard(t)
	handler := RazorpayWebhook(service, nil, false, guard, nil)

	rec := postWebhook(t, handler, []byte(`{"event":"invoice.paid"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with verification disabled, got %d", rec.Code)
	}
	if service.calls != 1 {
		t.Fatalf("expected dispatch, got %d calls", service.calls)
	}
}

func TestRazorpayWebhook_MalformedBodyIsAcknowledged(t *testing.T) {
	service := &fakeDispatcher{outcome: razorpaywebhook.OutcomeHandled}
	guard, _ := newTestGuard(t)
	handler := RazorpayWebhook(service, &fakeVerifier{valid: true}, true, guard, nil)

	rec := postWebhook(t, handler, []byte(`{not json`), map[string]string{
		"X-Razorpay-Signature": "sig",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for undecodable body, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
	if service.calls != 0 {
		t.Fatalf("dispatcher should not run for undecodable body")
	}
}

func TestRazorpayWebhook_SkippedReleasesGuard(t *testing.T) {
	service := &fakeDispatcher{
		outcome: razorpaywebhook.OutcomeSkipped,
		err:     fmt.Errorf("handler blew up"),
	}
	guard, store := newTestGuard(t)
	handler := RazorpayWebhook(service, &fakeVerifier{valid: true}, true, guard, nil)

	body := []byte(`{"entity":"event","event":"invoice.paid","payload":{}}`)
	headers := map[string]string{
		"X-Razorpay-Signature": "sig",
		"X-Razorpay-Event-Id":  "evt_skip",
	}

	rec := postWebhook(t, handler, body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on skip, got %d", rec.Code)
	}
	if rec.Body.String() != "Webhook Skipped" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if len(store.data) != 0 {
		t.Fatalf("skip should release the idempotency key, store has %v", store.data)
	}

	// the retry gets through to the dispatcher again
	rec2 := postWebhook(t, handler, body, headers)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec2.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected retry to dispatch again, got %d calls", service.calls)
	}
}

func TestRazorpayWebhook_UnhandledEventIsAcknowledged(t *testing.T) {
	service := &fakeDispatcher{outcome: razorpaywebhook.OutcomeUnhandled}
	guard, _ := newTestGuard(t)
	handler := RazorpayWebhook(service, &fakeVerifier{valid: true}, true, guard, nil)

	rec := postWebhook(t, handler, []byte(`{"entity":"event","event":"payment.captured","payload":{}}`), map[string]string{
		"X-Razorpay-Signature": "sig",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled event, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body for unhandled event, got %q", rec.Body.String())
	}
}

package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newTestOmiseProvider(t *testing.T, handler http.HandlerFunc) *omiseProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &omiseProvider{publicKey: "pkey_test_1", secretKey: "skey_test_1", endpoint: server.URL}
}

func TestOmiseRefundCreatesRefund(t *testing.T) {
	var (
		mu      sync.Mutex
		created map[string]any
	)
	provider := newTestOmiseProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if user, _, _ := r.BasicAuth(); user != "skey_test_1" {
			t.Errorf("request authenticated as %q", user)
		}
		if r.URL.Path != "/charges/chrg_1/refunds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
		case http.MethodPost:
			body := map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			created = body
			mu.Unlock()
			_, _ = w.Write([]byte(`{"object":"refund","id":"rfnd_1","amount":5000}`))
		}
	})

	result, err := provider.Refund(context.Background(), RefundRequest{
		BookingID:      "b1",
		ChargeID:       "chrg_1",
		Amount:         5000,
		Currency:       "thb",
		IdempotencyKey: "refund-b1",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.Reference != "rfnd_1" || result.Amount != 5000 {
		t.Fatalf("unexpected result %+v", result)
	}

	mu.Lock()
	defer mu.Unlock()
	if created == nil {
		t.Fatal("no refund was created")
	}
	if amount, _ := created["amount"].(float64); amount != 5000 {
		t.Fatalf("amount = %v", created["amount"])
	}
	metadata, _ := created["metadata"].(map[string]any)
	if metadata["idempotency_key"] != "refund-b1" || metadata["booking_id"] != "b1" {
		t.Fatalf("metadata = %v", metadata)
	}
}

func TestOmiseRefundReusesEarlierRefund(t *testing.T) {
	provider := newTestOmiseProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("refund created again with %s", r.Method)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"refund","id":"rfnd_other","amount":100,"metadata":{"idempotency_key":"refund-b2"}},
			{"object":"refund","id":"rfnd_1","amount":5000,"metadata":{"idempotency_key":"refund-b1"}}
		]}`))
	})

	result, err := provider.Refund(context.Background(), RefundRequest{
		BookingID:      "b1",
		ChargeID:       "chrg_1",
		Amount:         5000,
		IdempotencyKey: "refund-b1",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.Reference != "rfnd_1" {
		t.Fatalf("reference = %s", result.Reference)
	}
}

func TestOmiseRefundHonoursContext(t *testing.T) {
	provider := newTestOmiseProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request sent after cancellation: %s %s", r.Method, r.URL.Path)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Refund(ctx, RefundRequest{ChargeID: "chrg_1", Amount: 1, IdempotencyKey: "refund-b1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOmiseRefundSurfacesAPIErrors(t *testing.T) {
	provider := newTestOmiseProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","code":"invalid_charge","message":"charge was not found"}`))
	})

	_, err := provider.Refund(context.Background(), RefundRequest{ChargeID: "chrg_missing", Amount: 1, IdempotencyKey: "refund-b1"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestOmiseRefundWithoutCharge(t *testing.T) {
	provider := &omiseProvider{publicKey: "pkey_test_1", secretKey: "skey_test_1"}
	if _, err := provider.Refund(context.Background(), RefundRequest{Amount: 1}); !errors.Is(err, ErrNoCharge) {
		t.Fatalf("expected ErrNoCharge, got %v", err)
	}
}

func TestNewOmiseProviderRejectsMalformedKeys(t *testing.T) {
	if _, err := NewOmiseProvider("public", "secret"); err == nil {
		t.Fatal("malformed keys accepted")
	}
	if _, err := NewOmiseProvider("pkey_test_1", "skey_test_1"); err != nil {
		t.Fatalf("valid keys rejected: %v", err)
	}
}

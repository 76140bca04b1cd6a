package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loadpay/internal/types"
)

func newTestStripeClient(t *testing.T, serverURL string) *StripeClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-stripe",
		RetryPolicy{
			MaxRetries: 0, // deterministic behavior in tests
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"LoadPay-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey:  "sk_test_secret",
		SuccessURL: "https://pay.example.com/success",
		CancelURL:  "https://pay.example.com/cancel",
		BaseURL:    serverURL,
	})
}

// ---------------------------------------------------------------------------
// CreateCheckoutSession Tests
// ---------------------------------------------------------------------------

func TestCreateCheckoutSession_SendsMetadataContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("expected path /v1/checkout/sessions, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_secret" {
			t.Errorf("unexpected auth header %q", auth)
		}

		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}

		expectations := map[string]string{
			"mode":                        "payment",
			"success_url":                 "https://pay.example.com/success",
			"cancel_url":                  "https://pay.example.com/cancel",
			"metadata[game]":              "Fire Kirin",
			"metadata[username]":          "jdoe",
			"metadata[amount]":            "50.00",
			"metadata[convenience_fee]":   "2.50",
			"line_items[0][price_data][unit_amount]": "5000",
			"line_items[1][price_data][unit_amount]": "250",
			"customer_email":              "player@example.com",
		}
		for key, want := range expectations {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("param %s: expected %q, got %q", key, want, got)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_abc",
			"url": "https://checkout.stripe.com/pay/cs_test_abc",
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	result, err := client.CreateCheckoutSession(context.Background(), CheckoutInput{
		Game:          "Fire Kirin",
		Username:      "jdoe",
		DepositCents:  5000,
		FeeCents:      250,
		CustomerEmail: "player@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SessionID != "cs_test_abc" {
		t.Errorf("unexpected session ID %q", result.SessionID)
	}
	if result.URL != "https://checkout.stripe.com/pay/cs_test_abc" {
		t.Errorf("unexpected URL %q", result.URL)
	}
}

func TestCreateCheckoutSession_ZeroFeeOmitsFeeLineItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("line_items[1][price_data][unit_amount]"); got != "" {
			t.Errorf("expected no fee line item, got %q", got)
		}
		if got := r.PostForm.Get("metadata[convenience_fee]"); got != "0.00" {
			t.Errorf("expected fee metadata 0.00, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "cs_1", "url": "https://example.com"})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.CreateCheckoutSession(context.Background(), CheckoutInput{
		Game:         "Orion Stars",
		Username:     "someone",
		DepositCents: 2000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateCheckoutSession_StripeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"message": "Invalid currency",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.CreateCheckoutSession(context.Background(), CheckoutInput{
		Game:         "Juwa",
		Username:     "x",
		DepositCents: 100,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamStripe {
		t.Errorf("expected upstream stripe code, got %s", appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// GetPaymentIntent Tests
// ---------------------------------------------------------------------------

func TestGetPaymentIntent_ExpandedPaymentMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		expands := r.URL.Query()["expand[]"]
		if len(expands) != 2 {
			t.Errorf("expected 2 expand params, got %v", expands)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id": "pi_123",
			"payment_method": map[string]any{
				"id":   "pm_456",
				"type": "card",
				"card": map[string]any{
					"brand":  "visa",
					"last4":  "4242",
					"wallet": map[string]string{"type": "apple_pay"},
				},
			},
			"latest_charge": "ch_789",
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	record, err := client.GetPaymentIntent(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.ID != "pi_123" {
		t.Errorf("unexpected intent ID %q", record.ID)
	}
	if record.PaymentMethod == nil {
		t.Fatal("expected expanded payment method")
	}
	if record.PaymentMethod.Type != "card" {
		t.Errorf("unexpected type %q", record.PaymentMethod.Type)
	}
	if record.PaymentMethod.Card == nil || record.PaymentMethod.Card.Brand != "visa" {
		t.Errorf("unexpected card detail %+v", record.PaymentMethod.Card)
	}
	if record.PaymentMethod.Card.Wallet != "apple_pay" {
		t.Errorf("expected wallet apple_pay, got %q", record.PaymentMethod.Card.Wallet)
	}
	// The bare charge ID string must not be decoded as an expansion.
	if record.LatestCharge != nil {
		t.Errorf("expected nil latest charge for unexpanded reference, got %+v", record.LatestCharge)
	}
}

func TestGetPaymentIntent_LegacyChargeFallbackShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":             "pi_legacy",
			"payment_method": nil,
			"latest_charge": map[string]any{
				"id": "ch_legacy",
				"payment_method_details": map[string]any{
					"type": "cashapp",
					"cashapp": map[string]string{
						"cashtag": "$jdoe123",
					},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	record, err := client.GetPaymentIntent(context.Background(), "pi_legacy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.PaymentMethod != nil {
		t.Errorf("expected nil payment method, got %+v", record.PaymentMethod)
	}
	if record.LatestCharge == nil || record.LatestCharge.PaymentMethodDetails == nil {
		t.Fatal("expected charge payment method details")
	}
	details := record.LatestCharge.PaymentMethodDetails
	if details.Type != "cashapp" {
		t.Errorf("unexpected type %q", details.Type)
	}
	if details.CashApp == nil || details.CashApp.Cashtag != "$jdoe123" {
		t.Errorf("unexpected cashapp detail %+v", details.CashApp)
	}
}

func TestGetPaymentIntent_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"message": "No such payment_intent",
			},
		})
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)

	_, err := client.GetPaymentIntent(context.Background(), "pi_missing")
	if err == nil {
		t.Fatal("expected error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeNotFoundPayment {
		t.Errorf("expected not found code, got %s", appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// dollarString
// ---------------------------------------------------------------------------

func TestDollarString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{5250, "52.50"},
		{0, "0.00"},
		{1, "0.01"},
		{100, "1.00"},
		{999999, "9999.99"},
	}
	for _, tc := range cases {
		if got := dollarString(tc.cents); got != tc.want {
			t.Errorf("dollarString(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

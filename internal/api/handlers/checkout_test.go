package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"loadpay/internal/external"
	"loadpay/internal/types"
)

// mockCheckoutService implements external.CheckoutService for testing.
type mockCheckoutService struct {
	inputs []external.CheckoutInput
	result external.CheckoutSessionResult
	err    error
}

func (m *mockCheckoutService) CreateCheckoutSession(ctx context.Context, input external.CheckoutInput) (external.CheckoutSessionResult, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return external.CheckoutSessionResult{}, m.err
	}
	return m.result, nil
}

func postCheckout(handler *CheckoutHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout-session", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.HandleCreate(rr, req)
	return rr
}

func TestCheckout_CreatesSessionWithFee(t *testing.T) {
	svc := &mockCheckoutService{
		result: external.CheckoutSessionResult{
			SessionID: "cs_123",
			URL:       "https://checkout.stripe.com/pay/cs_123",
		},
	}
	handler := NewCheckoutHandler(svc, 5, testLogger())

	rr := postCheckout(handler, `{"game":"Fire Kirin","username":"j_doe","amount":50,"customer_email":"player@example.com"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(svc.inputs) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(svc.inputs))
	}
	input := svc.inputs[0]
	if input.DepositCents != 5000 {
		t.Errorf("expected 5000 deposit cents, got %d", input.DepositCents)
	}
	if input.FeeCents != 250 {
		t.Errorf("expected 250 fee cents at 5%%, got %d", input.FeeCents)
	}
	if input.Game != "Fire Kirin" || input.Username != "j_doe" {
		t.Errorf("unexpected identity %q/%q", input.Game, input.Username)
	}
	if input.CustomerEmail != "player@example.com" {
		t.Errorf("unexpected email %q", input.CustomerEmail)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			SessionID   string `json:"session_id"`
			CheckoutURL string `json:"checkout_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Data.CheckoutURL != "https://checkout.stripe.com/pay/cs_123" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCheckout_FeeRounding(t *testing.T) {
	svc := &mockCheckoutService{result: external.CheckoutSessionResult{SessionID: "cs_1", URL: "u"}}
	handler := NewCheckoutHandler(svc, 3.5, testLogger())

	rr := postCheckout(handler, `{"game":"Juwa","username":"x","amount":10.01}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	input := svc.inputs[0]
	if input.DepositCents != 1001 {
		t.Errorf("expected 1001 deposit cents, got %d", input.DepositCents)
	}
	// 1001 * 0.035 = 35.035 -> rounds to 35.
	if input.FeeCents != 35 {
		t.Errorf("expected 35 fee cents, got %d", input.FeeCents)
	}
}

func TestCheckout_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing game", `{"username":"x","amount":10}`},
		{"missing username", `{"game":"Juwa","amount":10}`},
		{"zero amount", `{"game":"Juwa","username":"x","amount":0}`},
		{"negative amount", `{"game":"Juwa","username":"x","amount":-5}`},
		{"over limit", `{"game":"Juwa","username":"x","amount":99999}`},
		{"not json", `not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockCheckoutService{}
			handler := NewCheckoutHandler(svc, 5, testLogger())

			rr := postCheckout(handler, tc.body)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if len(svc.inputs) != 0 {
				t.Error("provider must not be called for invalid requests")
			}
		})
	}
}

func TestCheckout_ProviderFailurePropagates(t *testing.T) {
	svc := &mockCheckoutService{
		err: types.NewAppError(types.ErrCodeUpstreamStripe, "Stripe error", nil),
	}
	handler := NewCheckoutHandler(svc, 5, testLogger())

	rr := postCheckout(handler, `{"game":"Juwa","username":"x","amount":10}`)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for upstream failure, got %d", rr.Code)
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("expected success false")
	}
}

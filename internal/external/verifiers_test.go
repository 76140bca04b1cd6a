package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header value for the given payload,
// matching the scheme the provider uses: HMAC-SHA256 over "timestamp.payload".
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifier_ValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed"}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	v := &StripeVerifier{}
	if err := v.Verify(payload, header, testWebhookSecret); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
}

func TestStripeVerifier_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_123"}`)
	header := signPayload(payload, "whsec_other", time.Now())

	v := &StripeVerifier{}
	if err := v.Verify(payload, header, testWebhookSecret); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestStripeVerifier_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_123","amount_total":5000}`)
	header := signPayload(payload, testWebhookSecret, time.Now())

	tampered := []byte(`{"id":"evt_123","amount_total":9999}`)

	v := &StripeVerifier{}
	if err := v.Verify(tampered, header, testWebhookSecret); err == nil {
		t.Error("expected verification failure for tampered payload")
	}
}

func TestStripeVerifier_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_123"}`)
	header := signPayload(payload, testWebhookSecret, time.Now().Add(-24*time.Hour))

	v := &StripeVerifier{}
	if err := v.Verify(payload, header, testWebhookSecret); err == nil {
		t.Error("expected verification failure for stale timestamp")
	}
}

func TestStripeVerifier_MalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_123"}`)

	v := &StripeVerifier{}
	for _, header := range []string{"", "garbage", "t=abc,v1=def"} {
		if err := v.Verify(payload, header, testWebhookSecret); err == nil {
			t.Errorf("expected verification failure for header %q", header)
		}
	}
}

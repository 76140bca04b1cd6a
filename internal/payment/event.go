// Package payment turns verified webhook events into normalized payment
// records and enriches them with a display-safe payment method descriptor.
// Everything here is constructed and discarded within a single webhook
// invocation; nothing persists across requests.
package payment

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"loadpay/internal/external"
	"loadpay/internal/types"
)

// Metadata defaults applied when the checkout session was created without
// the expected keys. Matching keys with unparsable numeric values fall back
// to zero rather than blocking the notification of a real payment.
const (
	defaultGame     = "Unknown Game"
	defaultUsername = "Unknown User"
)

// WebhookEvent is a minimal representation of a provider webhook event,
// tailored to the fields this service reads. The full event type from the
// vendor SDK is deliberately not used: decoding only what we consume keeps
// the pipeline decoupled from SDK churn and makes tests trivial to write.
type WebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// ParseWebhookEvent decodes the raw (already verified) payload bytes into a
// WebhookEvent envelope.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeMalformedPayload,
			"invalid webhook event JSON",
			err,
		)
	}
	return &event, nil
}

type eventData struct {
	Object json.RawMessage `json:"object"`
}

// checkoutSessionObj carries the minimal fields read from a
// checkout.session.completed event's data object.
type checkoutSessionObj struct {
	ID              string            `json:"id"`
	PaymentIntent   string            `json:"payment_intent"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	AmountTotal     int64             `json:"amount_total"`
	Metadata        map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
}

// CompletedPayment is the normalized record of a confirmed deposit. Amount
// fields are decimal dollars. CompletedAt is UTC; conversion to the display
// zone happens at render time only.
type CompletedPayment struct {
	SessionID      string
	PaymentID      string
	CustomerEmail  string
	Game           string
	Username       string
	DepositAmount  float64
	ConvenienceFee float64
	TotalPaid      float64
	CompletedAt    time.Time
}

// AmountMismatch reports whether the metadata-declared deposit plus fee
// fails to reconcile with the charged total beyond a cent. The mismatch is
// never enforced; callers log it and move on, because the metadata is
// trusted as supplied at session-creation time.
func (p *CompletedPayment) AmountMismatch() bool {
	return math.Abs(p.DepositAmount+p.ConvenienceFee-p.TotalPaid) > 0.01
}

// ExtractCompletedPayment normalizes a verified event into a
// CompletedPayment.
//
// Events other than checkout.session.completed return (nil, false, nil):
// acknowledged no-ops, so the provider does not retry them. A missing
// customer email is the one hard failure; every other metadata defect
// degrades to a default value.
func ExtractCompletedPayment(event *WebhookEvent) (*CompletedPayment, bool, error) {
	if event.Type != external.EventCheckoutCompleted {
		return nil, false, nil
	}

	var data eventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, false, types.NewAppError(
			types.ErrCodeMalformedPayload,
			"checkout event data is not a JSON object",
			err,
		)
	}

	var session checkoutSessionObj
	if err := json.Unmarshal(data.Object, &session); err != nil {
		return nil, false, types.NewAppError(
			types.ErrCodeMalformedPayload,
			"checkout session object is malformed",
			err,
		)
	}

	email := session.CustomerEmail
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email == "" {
		return nil, false, types.NewAppError(
			types.ErrCodeMissingCustomerEmail,
			"checkout session has no customer email",
			nil,
		)
	}

	game := session.Metadata["game"]
	if game == "" {
		game = defaultGame
	}
	username := session.Metadata["username"]
	if username == "" {
		username = defaultUsername
	}

	p := &CompletedPayment{
		SessionID:      session.ID,
		PaymentID:      paymentIdentity(&session, event),
		CustomerEmail:  email,
		Game:           game,
		Username:       username,
		DepositAmount:  parseAmount(session.Metadata["amount"]),
		ConvenienceFee: parseAmount(session.Metadata["convenience_fee"]),
		TotalPaid:      float64(session.AmountTotal) / 100,
		CompletedAt:    time.Unix(event.Created, 0).UTC(),
	}

	return p, true, nil
}

// paymentIdentity picks the most specific id available for dedupe and the
// notification subject: the payment intent, then the session, then the event.
func paymentIdentity(session *checkoutSessionObj, event *WebhookEvent) string {
	if session.PaymentIntent != "" {
		return session.PaymentIntent
	}
	if session.ID != "" {
		return session.ID
	}
	return event.ID
}

// parseAmount defensively parses a numeric metadata string, substituting
// zero on any failure.
func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

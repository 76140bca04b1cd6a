package external

import (
	"context"
)

// ---------------------------------------------------------------------------
// Payment Provider (Stripe)
// ---------------------------------------------------------------------------

// CheckoutInput carries everything needed to open a hosted checkout session
// for a game deposit. Amounts are in minor units (cents).
type CheckoutInput struct {
	Game            string
	Username        string
	DepositCents    int64
	FeeCents        int64
	CustomerEmail   string // optional; prefills the checkout form when set
	ReferenceSuffix string // optional; appended to the product description
}

// CheckoutSessionResult is the provider-side identity of a created session.
type CheckoutSessionResult struct {
	SessionID string
	URL       string
}

// CheckoutService abstracts checkout session creation against the payment
// provider.
type CheckoutService interface {
	// CreateCheckoutSession opens a one-time payment session carrying the
	// deposit metadata contract and returns the hosted payment page URL.
	CreateCheckoutSession(ctx context.Context, input CheckoutInput) (CheckoutSessionResult, error)
}

// PaymentInspector abstracts the post-payment lookup used to enrich a
// notification with how the customer actually paid.
type PaymentInspector interface {
	// GetPaymentIntent retrieves a payment intent with its payment method
	// and latest charge expanded. Callers decide which shape to read.
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntentRecord, error)
}

// PaymentIntentRecord is the provider-neutral view of a retrieved payment
// intent. Either expansion may be absent depending on the provider account's
// API age and the payment flow used.
type PaymentIntentRecord struct {
	ID string

	// PaymentMethod is the attached, expanded payment method object. Present
	// on modern accounts when the expansion succeeds.
	PaymentMethod *PaymentMethodRecord

	// LatestCharge carries the legacy per-charge method details. Used as the
	// fallback when no expanded payment method is attached.
	LatestCharge *ChargeRecord
}

// PaymentMethodRecord describes a single payment instrument. Exactly one of
// the detail pointers is set for a recognized type; all may be nil for
// instrument types this service does not model.
type PaymentMethodRecord struct {
	Type    string // provider type string, e.g. "card", "cashapp"
	Card    *CardRecord
	CashApp *CashAppRecord
}

// CardRecord holds card instrument details.
type CardRecord struct {
	Brand  string
	Last4  string
	Wallet string // "apple_pay", "google_pay", or "" for plain card entry
}

// CashAppRecord holds Cash App instrument details. Cashtag arrives from the
// provider with its leading "$" sigil intact.
type CashAppRecord struct {
	Cashtag string
}

// ChargeRecord is the slice of a charge object this service reads.
type ChargeRecord struct {
	ID                   string
	PaymentMethodDetails *PaymentMethodRecord
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// WebhookVerifier abstracts payment-provider webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error
}

// Webhook event type constants prevent magic strings in handlers.
const (
	EventCheckoutCompleted = "checkout.session.completed"
)

// ---------------------------------------------------------------------------
// Mail Delivery
// ---------------------------------------------------------------------------

// MailMessage is a fully rendered email ready for transmission. Both bodies
// are pre-rendered; providers never template.
type MailMessage struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// MailProvider abstracts the outbound mail transport. Implementations
// transmit pre-rendered content to a single recipient.
type MailProvider interface {
	// Send transmits the message. A non-nil error means the message was not
	// accepted by the transport; callers decide whether that matters.
	Send(ctx context.Context, msg MailMessage) error
}

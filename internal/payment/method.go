package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"loadpay/internal/external"
)

// MethodKind tags the closed set of payment instrument classifications.
type MethodKind string

const (
	MethodCard    MethodKind = "card"
	MethodCashApp MethodKind = "cashapp"
	MethodWallet  MethodKind = "wallet"
	MethodUnknown MethodKind = "unknown"
)

// MethodDescriptor is a display-safe summary of how a customer paid,
// independent of raw provider identifiers. The zero value is not meaningful;
// use UnknownMethod for the degraded case.
//
// Brand is stored lower-cased; Display upper-cases it. Handle is stored
// without its leading "$" sigil; Display re-adds it. Neither stored value is
// ever mutated by rendering.
type MethodDescriptor struct {
	Kind       MethodKind
	Brand      string // card brand, lower-cased
	Last4      string
	WalletKind string // "apple_pay", "google_pay"
	Handle     string // cash-transfer handle, sigil stripped
}

// UnknownMethod is the degraded descriptor used when enrichment fails.
func UnknownMethod() MethodDescriptor {
	return MethodDescriptor{Kind: MethodUnknown}
}

// Display renders the descriptor for the notification body.
func (d MethodDescriptor) Display() string {
	switch d.Kind {
	case MethodCard:
		return fmt.Sprintf("%s card ending %s", strings.ToUpper(d.Brand), d.Last4)
	case MethodWallet:
		return fmt.Sprintf("%s (%s card ending %s)", walletDisplayName(d.WalletKind), strings.ToUpper(d.Brand), d.Last4)
	case MethodCashApp:
		return "Cash App $" + d.Handle
	default:
		return "Unknown"
	}
}

func walletDisplayName(kind string) string {
	switch kind {
	case "apple_pay":
		return "Apple Pay"
	case "google_pay":
		return "Google Pay"
	default:
		return strings.ToUpper(kind)
	}
}

// Resolver classifies how a customer paid via a best-effort secondary lookup
// against the payment provider. Resolve never fails: every error collapses
// to the Unknown descriptor, because enrichment is cosmetic and must not
// block the notification of a real payment.
type Resolver struct {
	inspector external.PaymentInspector
	timeout   time.Duration
	logger    *slog.Logger
}

// NewResolver creates a Resolver. timeout bounds the provider lookup; past
// the deadline the descriptor degrades to Unknown.
func NewResolver(inspector external.PaymentInspector, timeout time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		inspector: inspector,
		timeout:   timeout,
		logger:    logger,
	}
}

// Resolve looks up the payment method behind a payment id. It tries the
// attached, expanded payment method first, then falls back to the legacy
// charge record that nests the same information one level deeper.
func (r *Resolver) Resolve(ctx context.Context, paymentID string) MethodDescriptor {
	if paymentID == "" || r.inspector == nil {
		return UnknownMethod()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	intent, err := r.inspector.GetPaymentIntent(ctx, paymentID)
	if err != nil {
		r.logger.WarnContext(ctx, "payment method lookup failed; degrading to unknown",
			"payment_id", paymentID,
			"error", err,
		)
		return UnknownMethod()
	}

	if intent.PaymentMethod != nil {
		if d, ok := classify(intent.PaymentMethod); ok {
			return d
		}
	}

	if intent.LatestCharge != nil && intent.LatestCharge.PaymentMethodDetails != nil {
		if d, ok := classify(intent.LatestCharge.PaymentMethodDetails); ok {
			return d
		}
	}

	r.logger.WarnContext(ctx, "payment method shape not recognized; degrading to unknown",
		"payment_id", paymentID,
	)
	return UnknownMethod()
}

// classify maps a provider method record onto the descriptor variants.
// Returns ok=false when the record carries no shape this service models,
// letting the caller try the next source.
func classify(pm *external.PaymentMethodRecord) (MethodDescriptor, bool) {
	switch {
	case pm.Card != nil && pm.Card.Wallet != "":
		return MethodDescriptor{
			Kind:       MethodWallet,
			Brand:      strings.ToLower(pm.Card.Brand),
			Last4:      pm.Card.Last4,
			WalletKind: pm.Card.Wallet,
		}, true
	case pm.Card != nil:
		return MethodDescriptor{
			Kind:  MethodCard,
			Brand: strings.ToLower(pm.Card.Brand),
			Last4: pm.Card.Last4,
		}, true
	case pm.CashApp != nil && pm.CashApp.Cashtag != "":
		return MethodDescriptor{
			Kind:   MethodCashApp,
			Handle: strings.TrimPrefix(pm.CashApp.Cashtag, "$"),
		}, true
	default:
		return MethodDescriptor{}, false
	}
}

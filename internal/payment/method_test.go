package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"loadpay/internal/external"
)

type mockInspector struct {
	getFn func(ctx context.Context, id string) (*external.PaymentIntentRecord, error)
}

func (m *mockInspector) GetPaymentIntent(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
	return m.getFn(ctx, id)
}

func newTestResolver(inspector external.PaymentInspector) *Resolver {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewResolver(inspector, time.Second, logger)
}

func TestResolve_AttachedPaymentMethod(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			return &external.PaymentIntentRecord{
				ID: id,
				PaymentMethod: &external.PaymentMethodRecord{
					Type: "card",
					Card: &external.CardRecord{Brand: "Visa", Last4: "4242"},
				},
			}, nil
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodCard, d.Kind)
	assert.Equal(t, "visa", d.Brand, "brand stored lower-cased")
	assert.Equal(t, "4242", d.Last4)
	assert.Equal(t, "VISA card ending 4242", d.Display())
}

func TestResolve_LegacyChargeFallback(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			return &external.PaymentIntentRecord{
				ID: id,
				LatestCharge: &external.ChargeRecord{
					PaymentMethodDetails: &external.PaymentMethodRecord{
						Type:    "cashapp",
						CashApp: &external.CashAppRecord{Cashtag: "$jdoe123"},
					},
				},
			}, nil
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodCashApp, d.Kind)
	assert.Equal(t, "jdoe123", d.Handle, "stored handle has the sigil stripped")
	assert.Equal(t, "Cash App $jdoe123", d.Display())
}

func TestResolve_AttachedShapeTriedBeforeLegacy(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			return &external.PaymentIntentRecord{
				ID: id,
				PaymentMethod: &external.PaymentMethodRecord{
					Card: &external.CardRecord{Brand: "mastercard", Last4: "1111"},
				},
				LatestCharge: &external.ChargeRecord{
					PaymentMethodDetails: &external.PaymentMethodRecord{
						CashApp: &external.CashAppRecord{Cashtag: "$other"},
					},
				},
			}, nil
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodCard, d.Kind)
	assert.Equal(t, "1111", d.Last4)
}

func TestResolve_WalletPayment(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			return &external.PaymentIntentRecord{
				ID: id,
				PaymentMethod: &external.PaymentMethodRecord{
					Card: &external.CardRecord{Brand: "visa", Last4: "4242", Wallet: "apple_pay"},
				},
			}, nil
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodWallet, d.Kind)
	assert.Equal(t, "apple_pay", d.WalletKind)
	assert.Equal(t, "Apple Pay (VISA card ending 4242)", d.Display())
}

func TestResolve_LookupErrorDegradesToUnknown(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			return nil, errors.New("network down")
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodUnknown, d.Kind)
	assert.Equal(t, "Unknown", d.Display())
}

func TestResolve_UnrecognizedShapeDegradesToUnknown(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			return &external.PaymentIntentRecord{
				ID:            id,
				PaymentMethod: &external.PaymentMethodRecord{Type: "us_bank_account"},
			}, nil
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodUnknown, d.Kind)
}

func TestResolve_EmptyPaymentID(t *testing.T) {
	called := false
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			called = true
			return nil, nil
		},
	})

	d := resolver.Resolve(context.Background(), "")
	assert.Equal(t, MethodUnknown, d.Kind)
	assert.False(t, called, "no lookup without a payment id")
}

func TestResolve_AppliesTimeout(t *testing.T) {
	resolver := newTestResolver(&mockInspector{
		getFn: func(ctx context.Context, id string) (*external.PaymentIntentRecord, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "lookup context must carry a deadline")
			assert.LessOrEqual(t, time.Until(deadline), time.Second)
			return nil, ctx.Err()
		},
	})

	d := resolver.Resolve(context.Background(), "pi_1")
	assert.Equal(t, MethodUnknown, d.Kind)
}

func TestDisplay_RenderIsIdempotent(t *testing.T) {
	d := MethodDescriptor{Kind: MethodCashApp, Handle: "jdoe123"}

	first := d.Display()
	second := d.Display()
	assert.Equal(t, "Cash App $jdoe123", first)
	assert.Equal(t, first, second)
	assert.Equal(t, "jdoe123", d.Handle, "rendering must not mutate the stored handle")
}

func TestDisplay_UnknownWalletKind(t *testing.T) {
	d := MethodDescriptor{Kind: MethodWallet, Brand: "amex", Last4: "0005", WalletKind: "samsung_pay"}
	assert.Equal(t, "SAMSUNG_PAY (AMEX card ending 0005)", d.Display())
}

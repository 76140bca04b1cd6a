// Package handlers contains the HTTP handler implementations for the
// loadpay API.
//
// The webhook handler is NOT behind any auth middleware: it is called
// directly by the payment provider. Security comes from verifying the
// Stripe-Signature header over the raw body before anything is parsed.
package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loadpay/internal/core"
	"loadpay/internal/external"
	"loadpay/internal/payment"
	"loadpay/internal/types"
)

// maxWebhookBodySize caps the webhook payload at 64 KB. Provider payloads
// are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// PaymentEnqueuer hands a completed payment to the background notification
// pipeline. The result reports acceptance only; the webhook response never
// depends on it.
type PaymentEnqueuer interface {
	Enqueue(p *payment.CompletedPayment) bool
}

// StripeWebhookHandler handles asynchronous payment confirmation events.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	enqueuer PaymentEnqueuer
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler with the provided
// dependencies.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	enqueuer PaymentEnqueuer,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		enqueuer: enqueuer,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Handle)
}

// Handle processes an incoming payment webhook:
//
//  1. Reads the raw body with a size limit.
//  2. Verifies the Stripe-Signature header over the raw bytes. Nothing is
//     parsed before this succeeds.
//  3. Parses the event envelope and extracts the completed payment.
//  4. Hands the payment to the background dispatcher (fire-and-forget).
//  5. Responds 200 for handled and skipped events, 400 for unauthentic or
//     unusable ones.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeMalformedPayload,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeSignatureMissing,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(body, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	event, err := payment.ParseWebhookEvent(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook event",
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	p, ok, err := payment.ExtractCompletedPayment(event)
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook event rejected",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	if !ok {
		// Unhandled event kinds are acknowledged so the provider does not
		// retry them.
		h.logger.InfoContext(r.Context(), "ignoring unhandled webhook event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		core.Success(w, r, nil)
		return
	}

	h.logger.InfoContext(r.Context(), "payment confirmed",
		"event_id", event.ID,
		"payment_id", p.PaymentID,
		"game", p.Game,
		"username", p.Username,
	)

	// Fire and forget: enrichment and delivery happen off the request path,
	// and their outcome never changes this response.
	h.enqueuer.Enqueue(p)

	core.Success(w, r, nil)
}

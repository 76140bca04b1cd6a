package handlers

import (
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loadpay/internal/core"
	"loadpay/internal/external"
	"loadpay/internal/types"
)

// maxCheckoutDollars caps a single deposit. Anything larger is almost
// certainly a typo'd amount.
const maxCheckoutDollars = 10000

// CheckoutHandler creates hosted checkout sessions for game deposits. It is
// the producer of the metadata contract the webhook side reads back: every
// session carries exactly the keys game, username, amount, convenience_fee.
type CheckoutHandler struct {
	checkout   external.CheckoutService
	feePercent float64
	logger     *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler. feePercent is the
// convenience-fee surcharge in percent.
func NewCheckoutHandler(checkout external.CheckoutService, feePercent float64, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		checkout:   checkout,
		feePercent: feePercent,
		logger:     logger,
	}
}

// RegisterRoutes mounts the checkout endpoint.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout-session", h.HandleCreate)
}

// checkoutRequest is the client payload for creating a deposit session.
// Amount is in dollars.
type checkoutRequest struct {
	Game          string  `json:"game"`
	Username      string  `json:"username"`
	Amount        float64 `json:"amount"`
	CustomerEmail string  `json:"customer_email"`
}

// checkoutResponse carries the hosted payment page the client redirects to.
type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// HandleCreate validates the deposit request, computes the convenience fee,
// and opens a checkout session with the provider.
func (h *CheckoutHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validate(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	depositCents := int64(math.Round(req.Amount * 100))
	feeCents := int64(math.Round(float64(depositCents) * h.feePercent / 100))

	result, err := h.checkout.CreateCheckoutSession(r.Context(), external.CheckoutInput{
		Game:          req.Game,
		Username:      req.Username,
		DepositCents:  depositCents,
		FeeCents:      feeCents,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "checkout session creation failed",
			"game", req.Game,
			"username", req.Username,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"session_id", result.SessionID,
		"game", req.Game,
		"username", req.Username,
		"deposit_cents", depositCents,
		"fee_cents", feeCents,
	)

	core.Success(w, r, checkoutResponse{
		SessionID:   result.SessionID,
		CheckoutURL: result.URL,
	})
}

// validate enforces the request invariants before touching the provider.
func (h *CheckoutHandler) validate(req *checkoutRequest) error {
	if req.Game == "" {
		return types.NewAppError(types.ErrCodeValidationMissing, "game is required", nil)
	}
	if req.Username == "" {
		return types.NewAppError(types.ErrCodeValidationMissing, "username is required", nil)
	}
	if req.Amount <= 0 {
		return types.NewAppError(types.ErrCodeValidationInvalid, "amount must be greater than zero", nil)
	}
	if req.Amount > maxCheckoutDollars {
		return types.NewAppError(types.ErrCodeValidationInvalid, "amount exceeds the deposit limit", nil)
	}
	return nil
}

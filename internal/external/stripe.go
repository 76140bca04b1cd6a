package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"loadpay/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	BaseURL    string // Override for testing; defaults to stripeAPIBase
	Logger     *slog.Logger
}

// StripeClient implements CheckoutService and PaymentInspector by making
// direct HTTP calls to the Stripe REST API through BaseClient. Routing every
// request through BaseClient keeps circuit breaking, retries, and error
// mapping uniform, and makes httptest-based testing straightforward.
type StripeClient struct {
	base       *BaseClient
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout bounds
// each individual attempt; the context deadline bounds the whole call.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		DefaultRetryPolicy(),
		"LoadPay/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful for tests that need to control retry behavior.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:       base,
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}
}

// ---------------------------------------------------------------------------
// CheckoutService Implementation
// ---------------------------------------------------------------------------

// CreateCheckoutSession opens a one-time payment checkout session. The
// deposit and fee are separate line items so the customer sees the surcharge
// before paying, and the metadata carries the contract the webhook side
// reads back: game, username, amount, convenience_fee. Amount values in
// metadata are decimal dollar strings.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (CheckoutSessionResult, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("success_url", s.successURL)
	params.Set("cancel_url", s.cancelURL)

	productName := fmt.Sprintf("%s deposit for %s", input.Game, input.Username)
	if input.ReferenceSuffix != "" {
		productName += " " + input.ReferenceSuffix
	}

	params.Set("line_items[0][price_data][currency]", "usd")
	params.Set("line_items[0][price_data][product_data][name]", productName)
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(input.DepositCents, 10))
	params.Set("line_items[0][quantity]", "1")

	if input.FeeCents > 0 {
		params.Set("line_items[1][price_data][currency]", "usd")
		params.Set("line_items[1][price_data][product_data][name]", "Convenience fee")
		params.Set("line_items[1][price_data][unit_amount]", strconv.FormatInt(input.FeeCents, 10))
		params.Set("line_items[1][quantity]", "1")
	}

	params.Set("metadata[game]", input.Game)
	params.Set("metadata[username]", input.Username)
	params.Set("metadata[amount]", dollarString(input.DepositCents))
	params.Set("metadata[convenience_fee]", dollarString(input.FeeCents))

	if input.CustomerEmail != "" {
		params.Set("customer_email", input.CustomerEmail)
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return CheckoutSessionResult{}, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckoutSessionResult{}, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return CheckoutSessionResult{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return CheckoutSessionResult{SessionID: session.ID, URL: session.URL}, nil
}

// dollarString renders minor units as a decimal dollar string with two
// places, e.g. 5250 -> "52.50".
func dollarString(cents int64) string {
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}

// ---------------------------------------------------------------------------
// PaymentInspector Implementation
// ---------------------------------------------------------------------------

// GetPaymentIntent retrieves a payment intent with the payment method and
// latest charge expanded. Both expansions are requested in a single call;
// either may come back absent depending on the account's API version and
// the flow that produced the payment.
func (s *StripeClient) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntentRecord, error) {
	params := url.Values{}
	params.Add("expand[]", "payment_method")
	params.Add("expand[]", "latest_charge")

	resp, err := s.doGet(ctx, "/v1/payment_intents/"+url.PathEscape(paymentIntentID), params)
	if err != nil {
		return nil, s.wrapStripeError("GetPaymentIntent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetPaymentIntent")
	}

	var intent stripePaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe payment intent response",
			err,
		)
	}

	return mapPaymentIntent(&intent), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request with a form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundPayment,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
			map[string]any{
				"stripe_type": stripeErr.Type,
				"stripe_code": stripeErr.Code,
			},
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient errors (circuit open, retries exhausted) already carry the
	// right upstream code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// stripePaymentIntent models the subset of a payment intent this service
// reads. payment_method and latest_charge appear as bare ID strings when not
// expanded; RawMessage defers that distinction to decode time.
type stripePaymentIntent struct {
	ID            string          `json:"id"`
	PaymentMethod json.RawMessage `json:"payment_method"`
	LatestCharge  json.RawMessage `json:"latest_charge"`
}

type stripePaymentMethod struct {
	ID      string               `json:"id"`
	Type    string               `json:"type"`
	Card    *stripeCardDetail    `json:"card"`
	CashApp *stripeCashAppDetail `json:"cashapp"`
}

type stripeCardDetail struct {
	Brand  string        `json:"brand"`
	Last4  string        `json:"last4"`
	Wallet *stripeWallet `json:"wallet"`
}

type stripeWallet struct {
	Type string `json:"type"`
}

type stripeCashAppDetail struct {
	Cashtag string `json:"cashtag"`
}

type stripeCharge struct {
	ID                   string               `json:"id"`
	PaymentMethodDetails *stripePaymentMethod `json:"payment_method_details"`
}

// ---------------------------------------------------------------------------
// Mapping Functions
// ---------------------------------------------------------------------------

// mapPaymentIntent converts the Stripe wire shape into the provider-neutral
// PaymentIntentRecord. Unexpanded references (plain ID strings) and absent
// fields map to nil.
func mapPaymentIntent(pi *stripePaymentIntent) *PaymentIntentRecord {
	record := &PaymentIntentRecord{ID: pi.ID}

	if pm := decodeExpanded[stripePaymentMethod](pi.PaymentMethod); pm != nil {
		record.PaymentMethod = mapPaymentMethod(pm)
	}

	if ch := decodeExpanded[stripeCharge](pi.LatestCharge); ch != nil {
		charge := &ChargeRecord{ID: ch.ID}
		if ch.PaymentMethodDetails != nil {
			charge.PaymentMethodDetails = mapPaymentMethod(ch.PaymentMethodDetails)
		}
		record.LatestCharge = charge
	}

	return record
}

// decodeExpanded decodes a Stripe field that may be null, a bare ID string,
// or a full expanded object. Only the expanded object form yields a value.
func decodeExpanded[T any](raw json.RawMessage) *T {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func mapPaymentMethod(pm *stripePaymentMethod) *PaymentMethodRecord {
	record := &PaymentMethodRecord{Type: pm.Type}
	if pm.Card != nil {
		card := &CardRecord{
			Brand: pm.Card.Brand,
			Last4: pm.Card.Last4,
		}
		if pm.Card.Wallet != nil {
			card.Wallet = pm.Card.Wallet.Type
		}
		record.Card = card
	}
	if pm.CashApp != nil {
		record.CashApp = &CashAppRecord{Cashtag: pm.CashApp.Cashtag}
	}
	return record
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ CheckoutService = (*StripeClient)(nil)
var _ PaymentInspector = (*StripeClient)(nil)

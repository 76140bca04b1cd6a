// Package config defines the global configuration structure for the loadpay
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"loadpay/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the loadpay service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	Mail     MailConfig
	Notify   NotifyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// StripeConfig holds Stripe payment integration credentials. The secret key
// selects test or live mode by its sk_test_/sk_live_ prefix.
type StripeConfig struct {
	SecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	WebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	// LookupTimeout bounds the payment-method enrichment lookup. Past the
	// deadline the method descriptor degrades to Unknown instead of holding
	// up the notification.
	LookupTimeout time.Duration `envconfig:"METHOD_LOOKUP_TIMEOUT" default:"5s"`
}

// CheckoutConfig holds the checkout-session creation parameters.
type CheckoutConfig struct {
	// FeePercent is the convenience-fee surcharge applied to the base
	// deposit at session-creation time, in percent (e.g. 5 means 5%).
	FeePercent float64 `envconfig:"CONVENIENCE_FEE_PERCENT" default:"5"`
	SuccessURL string  `envconfig:"CHECKOUT_SUCCESS_URL" validate:"required,url"`
	CancelURL  string  `envconfig:"CHECKOUT_CANCEL_URL" validate:"required,url"`
}

// MailConfig holds mail delivery provider credentials and sender identity.
// Provider selects the transport: "smtp" or "sendgrid".
type MailConfig struct {
	Provider    string       `envconfig:"MAIL_PROVIDER" default:"smtp" validate:"oneof=smtp sendgrid"`
	FromAddress string       `envconfig:"MAIL_FROM_ADDRESS" validate:"required,email"`
	FromName    string       `envconfig:"MAIL_FROM_NAME" default:"LoadPay Deposits"`
	SMTPHost    string       `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort    int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser    string       `envconfig:"SMTP_USERNAME"`
	SMTPPass    SecretString `envconfig:"SMTP_PASSWORD"`
	SendGridKey SecretString `envconfig:"SENDGRID_API_KEY"`
}

// NotifyConfig holds the operator notification settings.
type NotifyConfig struct {
	// Recipient is the single fixed operator mailbox that receives every
	// payment notification.
	Recipient string `envconfig:"NOTIFY_RECIPIENT" validate:"required,email"`

	// DisplayTimezone is the IANA zone used for rendering payment times.
	// The stored timestamp remains UTC; this affects display only.
	DisplayTimezone string `envconfig:"DISPLAY_TIMEZONE" default:"America/New_York"`

	// DedupeTTL is how long a payment id is remembered for webhook
	// redelivery suppression. Within the window a redelivered event is
	// acknowledged but not re-notified.
	DedupeTTL time.Duration `envconfig:"NOTIFY_DEDUPE_TTL" default:"30m"`

	// QueueSize is the buffered capacity of the background dispatch queue.
	QueueSize int `envconfig:"NOTIFY_QUEUE_SIZE" default:"64"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

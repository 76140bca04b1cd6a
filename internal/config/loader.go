// loader.go implements the configuration loading lifecycle for loadpay.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator, plus the handful of
//     cross-field rules envconfig tags cannot express.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid
// debugging. It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the loadpay configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing; does not override
//     variables already set in the OS environment).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Validates the Config struct.
func LoadConfig() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs. Display-time
	// conversion happens explicitly at render time, never implicitly.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent).
	_ = godotenv.Load()

	// Step 3: Process envconfig tags to populate the Config struct.
	// The empty prefix "" means envconfig will use the exact tag values
	// (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := validateCrossFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossFields enforces rules that depend on more than one field.
// The mail provider choice decides which credential set is mandatory.
func validateCrossFields(cfg *Config) error {
	switch cfg.Mail.Provider {
	case "smtp":
		if cfg.Mail.SMTPHost == "" || cfg.Mail.SMTPUser == "" || cfg.Mail.SMTPPass.Unmask() == "" {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "MAIL_PROVIDER=smtp requires SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD",
			}
		}
	case "sendgrid":
		if cfg.Mail.SendGridKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "MAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY",
			}
		}
	}

	if _, err := time.LoadLocation(cfg.Notify.DisplayTimezone); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DISPLAY_TIMEZONE %q is not a valid IANA zone", cfg.Notify.DisplayTimezone),
			Err:     err,
		}
	}

	return nil
}

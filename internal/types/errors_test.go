package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeSignatureMissing, http.StatusBadRequest},
		{ErrCodeSignatureInvalid, http.StatusBadRequest},
		{ErrCodeMalformedPayload, http.StatusBadRequest},
		{ErrCodeMissingCustomerEmail, http.StatusBadRequest},
		{ErrCodeValidationMissing, http.StatusBadRequest},
		{ErrCodeNotFoundPayment, http.StatusNotFound},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeUpstreamMail, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_unrecognized"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.expected {
				t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.expected)
			}
		})
	}
}

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeSignatureInvalid, "signature verification failed", nil)
	expected := "auth_signature_invalid: signature verification failed"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("hmac mismatch")
	err := NewAppError(ErrCodeSignatureInvalid, "signature verification failed", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) {
		t.Error("errors.As should resolve *AppError")
	}
	if appErr.Code != ErrCodeSignatureInvalid {
		t.Errorf("unexpected code %q", appErr.Code)
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	err := NewAppErrorWithDetails(ErrCodeValidationInvalid, "bad amount", nil, map[string]any{
		"field": "amount",
	})
	if err.Details["field"] != "amount" {
		t.Errorf("expected details to carry field, got %v", err.Details)
	}
	if err.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.HTTPStatus())
	}
}

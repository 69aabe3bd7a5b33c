package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "invoice not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: invoice not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "matches same type",
			err:    fmt.Errorf("lookup: %w", ErrInvoiceNotFound),
			target: ErrClientNotFound,
			want:   true, // Is matches on Type, both are not_found
		},
		{
			name:   "does not match different type",
			err:    ErrInvoiceNotFound,
			target: ErrInvalidSignature,
			want:   false,
		},
		{
			name:   "does not match non-domain error",
			err:    ErrInvoiceNotFound,
			target: errors.New("plain"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeConflict, "duplicate", nil).
		WithDetail("transaction_id", "txn-1")

	assert.Equal(t, "txn-1", err.Details["transaction_id"])
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found matches", ErrUserNotFound, IsNotFoundError, true},
		{"not found through wrapping", fmt.Errorf("get: %w", ErrUserNotFound), IsNotFoundError, true},
		{"validation matches", ErrInvalidSettlementInput, IsValidationError, true},
		{"signature matches", ErrInvalidSignature, IsSignatureError, true},
		{"signature is not validation", ErrInvalidSignature, IsValidationError, false},
		{"rate limit matches", ErrQuotaExceeded, IsRateLimitError, true},
		{"conflict matches", ErrDuplicateSettlement, IsConflictError, true},
		{"forbidden matches", ErrForbidden, IsForbiddenError, true},
		{"internal matches", ErrStorageUnavailable, IsInternalError, true},
		{"plain error matches nothing", errors.New("plain"), IsNotFoundError, false},
		{"nil matches nothing", nil, IsInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestNewQuotaExceededError(t *testing.T) {
	err := NewQuotaExceededError("kyc_submission", 86400)

	require.True(t, IsRateLimitError(err))
	assert.Equal(t, "kyc_submission", err.Details["action"])
	assert.Equal(t, int64(86400), err.Details["retry_after_seconds"])
	assert.Contains(t, err.Message, "kyc_submission")
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeConflict, GetErrorType(ErrDuplicateInvoiceNumber))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}

func TestWrapInternal(t *testing.T) {
	base := errors.New("connection refused")
	err := WrapInternal("quota store unavailable", base)

	assert.True(t, IsInternalError(err))
	assert.True(t, errors.Is(err, base))
}

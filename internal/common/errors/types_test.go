package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: &AppError{Type: ErrTypeConfig, Message: "configuration is invalid"},
			want:     "config: configuration is invalid",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeConnection,
				Message: "database connection failed",
				Cause:   errors.New("network timeout"),
			},
			want: "connection: database connection failed: cause=network timeout",
		},
		{
			name: "error with context",
			appError: &AppError{
				Type:    ErrTypeValidation,
				Message: "field validation failed",
				Context: map[string]interface{}{"field": "ruleType"},
			},
			want: "validation: field validation failed: context={field=ruleType}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	appError := InternalError("wrapped", cause)

	assert.Equal(t, cause, appError.Unwrap())
	assert.True(t, errors.Is(appError, cause))
}

func TestIsType_WrappedErrors(t *testing.T) {
	notFound := NotFoundError("routing rule", nil)
	wrapped := fmt.Errorf("delete rule: %w", notFound)

	assert.True(t, IsType(notFound, ErrTypeNotFound))
	assert.True(t, IsType(wrapped, ErrTypeNotFound))
	assert.False(t, IsType(wrapped, ErrTypeValidation))
	assert.False(t, IsType(errors.New("plain"), ErrTypeNotFound))
	assert.False(t, IsType(nil, ErrTypeNotFound))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetType(nil))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrTypeValidation, GetType(fmt.Errorf("x: %w", ValidationError("bad"))))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ValidationError("bad"), http.StatusBadRequest},
		{AuthError("no token"), http.StatusUnauthorized},
		{NotFoundError("routing rule", nil), http.StatusNotFound},
		{RateLimitError("client"), http.StatusTooManyRequests},
		{ConnectionError("db down", nil), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "routing rule not found", PublicMessage(NotFoundError("routing rule", nil)))
	assert.Equal(t, "internal server error", PublicMessage(InternalError("sql: syntax error", nil)))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("raw")))
}

func TestValidationErrorf(t *testing.T) {
	err := ValidationErrorf("allocateCount must be at most %d", 100000)
	assert.Equal(t, "allocateCount must be at most 100000", err.Message)
	assert.Equal(t, ErrTypeValidation, err.Type)
}

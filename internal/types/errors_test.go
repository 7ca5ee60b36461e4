package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"validation prefix", ErrCodeValidationInvalidPhone, http.StatusBadRequest},
		{"auth prefix", ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{"auth cron secret", ErrCodeAuthCronSecret, http.StatusUnauthorized},
		{"account not active is 403", ErrCodeAuthAccountNotActive, http.StatusForbidden},
		{"permission prefix", ErrCodePermissionAdmin, http.StatusForbidden},
		{"daily message limit is 429", ErrCodeLimitDailyMessages, http.StatusTooManyRequests},
		{"not found prefix", ErrCodeNotFoundPlan, http.StatusNotFound},
		{"conflict prefix", ErrCodeConflictEmail, http.StatusConflict},
		{"payment declined is 402", ErrCodePaymentDeclined, http.StatusPaymentRequired},
		{"upstream prefix", ErrCodeUpstreamGateway, http.StatusBadGateway},
		{"internal prefix", ErrCodeInternalDB, http.StatusInternalServerError},
		{"unknown code defaults to 500", ErrorCode("mystery_code"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "query failed", inner)

	assert.Equal(t, "internal_database_error: query failed", err.Error())
	assert.Equal(t, inner, errors.Unwrap(err))
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestAppError_ErrorsAs(t *testing.T) {
	var target *AppError
	wrapped := NewAppError(ErrCodeNotFoundTenant, "tenant not found", nil)

	require.True(t, errors.As(error(wrapped), &target))
	assert.Equal(t, ErrCodeNotFoundTenant, target.Code)
}

func TestAppError_WithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeLimitDailyMessages, "quota exceeded", nil, map[string]any{
		"limit": 100,
	})

	derived := base.WithDetails(map[string]any{"sent": 100})

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
	assert.Equal(t, base.Code, derived.Code)
}

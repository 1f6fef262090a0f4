package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"items unavailable", NewItemsUnavailableError("refresh your cart"), http.StatusConflict},
		{"not found", NewNotFoundError("order not found"), http.StatusNotFound},
		{"signature", NewSignatureInvalidError("bad signature"), http.StatusBadRequest},
		{"upstream", NewUpstreamGatewayError("stripe down", true), http.StatusBadGateway},
		{"validation", NewValidationError("email is required"), http.StatusBadRequest},
		{"wrapped", fmt.Errorf("create order: %w", NewItemsUnavailableError("x")), http.StatusConflict},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("reserve: %w", NewItemsUnavailableError("artwork sold"))

	assert.True(t, Is(err, ErrItemsUnavailable))
	assert.False(t, Is(err, ErrNotFound))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewUpstreamGatewayError("timeout", true)))
	assert.False(t, IsRetryable(NewUpstreamGatewayError("card declined", false)))
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrTimeout)))
	assert.False(t, IsRetryable(fmt.Errorf("x")))
}

func TestWithContext(t *testing.T) {
	err := NewNotFoundError("missing").WithContext("orderID", "o-1")

	assert.Equal(t, "o-1", err.Context["orderID"])
	assert.Equal(t, "missing", err.Error())
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"no provider", fmt.Errorf("dispatch: %w", agent.ErrNoProviderConfigured), http.StatusInternalServerError, "not_configured", false},
		{"auth by status", &llm.ProviderError{Provider: "gemini", Code: 403, Message: "forbidden"}, http.StatusUnauthorized, "auth_error", false},
		{"auth by message", errors.New("Invalid API key provided"), http.StatusUnauthorized, "auth_error", false},
		{"quota by status", &llm.ProviderError{Provider: "qwen", Code: 429, Message: "slow down"}, http.StatusTooManyRequests, "rate_limited", true},
		{"quota by message", errors.New("monthly quota exhausted"), http.StatusTooManyRequests, "rate_limited", true},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "network_error", true},
		{"fetch failed", errors.New("fetch failed"), http.StatusServiceUnavailable, "network_error", true},
		{"other", errors.New("model exploded"), http.StatusInternalServerError, "service_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassifyErrorMessages(t *testing.T) {
	assert.Equal(t, MsgNoProvider, classifyError(agent.ErrNoProviderConfigured).Message)
	assert.Equal(t, "Service error: model exploded", classifyError(errors.New("model exploded")).Message)
}

func TestWriteAPIError(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("X-Request-ID", "req-42")

	writeAPIError(rr, classifyError(&llm.ProviderError{Provider: "qwen", Code: 429, Message: "quota"}))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Service temporarily unavailable - please try again later","code":"rate_limited","retryable":true,"requestId":"req-42"}`, rr.Body.String())
}

func TestAPIErrorShape(t *testing.T) {
	shape := classifyError(errors.New("network unreachable")).shape()
	require.Equal(t, "network_error", shape.Code)
	assert.True(t, shape.Retryable)
}

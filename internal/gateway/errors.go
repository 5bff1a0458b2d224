package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/llm"
)

var ErrClientClosed = errors.New("client connection closed")

// Client-facing messages.
const (
	MsgInvalidBody       = "Invalid request body"
	MsgInvalidMessages   = "Invalid messages format"
	MsgSessionIDRequired = "Session ID is required"
	MsgNoProvider        = "No AI service configured. Please set GEMINI_API_KEY, QWEN_API_KEY or OPENAI_API_KEY."
	msgAuth              = "Authentication error - please check API configuration"
	msgQuota             = "Service temporarily unavailable - please try again later"
	msgNetwork           = "Network error - please check your connection and try again"
)

// apiError is a classified failure ready to be written to a client.
type apiError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"requestId,omitempty"`
}

// classifyError maps a chat failure to a status and client message.
func classifyError(err error) apiError {
	switch {
	case errors.Is(err, agent.ErrNoProviderConfigured):
		return apiError{http.StatusInternalServerError, "not_configured", MsgNoProvider, false}
	case llm.IsAuthError(err):
		return apiError{http.StatusUnauthorized, "auth_error", msgAuth, false}
	case llm.IsQuotaError(err):
		return apiError{http.StatusTooManyRequests, "rate_limited", msgQuota, true}
	case llm.IsNetworkError(err):
		return apiError{http.StatusServiceUnavailable, "network_error", msgNetwork, true}
	default:
		return apiError{http.StatusInternalServerError, "service_error", "Service error: " + err.Error(), false}
	}
}

func (e apiError) shape() ErrorShape {
	return ErrorShape{Code: e.Code, Message: e.Message, Retryable: e.Retryable}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a bare {"error": msg} body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAPIError(w http.ResponseWriter, e apiError) {
	writeJSON(w, e.Status, ErrorBody{
		Error:     e.Message,
		Code:      e.Code,
		Retryable: e.Retryable,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.), 0 for transport failures
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// transportError wraps a failure that happened before any HTTP status was seen.
func transportError(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Message: "request timeout: " + err.Error()}
	}
	return &ProviderError{Provider: provider, Message: "network error: " + err.Error()}
}

// IsAuthError reports whether err means the credential was rejected.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && (pe.Code == http.StatusUnauthorized || pe.Code == http.StatusForbidden) {
		return true
	}
	return containsFold(err.Error(), "api key", "authentication", "unauthorized")
}

// IsQuotaError reports whether err is a rate-limit or quota rejection.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code == http.StatusTooManyRequests {
		return true
	}
	return containsFold(err.Error(), "rate limit", "quota", "429")
}

// IsNetworkError reports whether err is a transport failure or timeout.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return containsFold(err.Error(), "network", "fetch", "timeout", "connection")
}

func containsFold(s string, needles ...string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

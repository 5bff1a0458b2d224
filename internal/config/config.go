package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort               = 3000
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 2000
	DefaultMaxRetries         = 3
	DefaultRetryDelayMs       = 1000
	DefaultHistoryWindow      = 10
	DefaultCallTimeoutSeconds = 30
	DefaultHandoffThreshold   = 0.2
	DefaultAgentID            = "sales-001"
)

// DefaultProviderOrder is the provider preference when none is configured.
var DefaultProviderOrder = []string{"gemini", "qwen", "openai"}

// Defaults returns a Config with defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// TemperatureValue returns the configured temperature or the default.
func (d AgentDefaults) TemperatureValue() float64 {
	if d.Temperature == nil {
		return DefaultTemperature
	}
	return *d.Temperature
}

// HandoffThresholdValue returns the configured threshold or the default.
func (d AgentDefaults) HandoffThresholdValue() float64 {
	if d.HandoffThreshold == nil {
		return DefaultHandoffThreshold
	}
	return *d.HandoffThreshold
}

func (d AgentDefaults) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelayMs) * time.Millisecond
}

func (d AgentDefaults) CallTimeout() time.Duration {
	return time.Duration(d.CallTimeoutSeconds) * time.Second
}

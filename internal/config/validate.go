package config

import (
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds      = []string{"loopback", "lan", "custom"}
	validProviders  = []string{"gemini", "qwen", "openai"}
	validDrivers    = []string{"sqlite", "memory"}
	validLogLevels  = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validLogStyles  = []string{"pretty", "json"}
	validPriorities = []string{"low", "medium", "high"}
)

// CronParser accepts standard 5-field expressions (minute hour dom month dow).
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, allowed []string) {
		if value != "" && !slices.Contains(allowed, value) {
			add(path, "must be one of %v, got %q", allowed, value)
		}
	}

	// Server
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "port must be 0-65535, got %d", cfg.Server.Port)
	}
	oneOf("server.bind", cfg.Server.Bind, validBinds)

	// Providers
	seen := map[string]bool{}
	for i, name := range cfg.Providers.Order {
		path := fmt.Sprintf("providers.order[%d]", i)
		if !slices.Contains(validProviders, name) {
			add(path, "must be one of %v, got %q", validProviders, name)
			continue
		}
		if seen[name] {
			add(path, "duplicate provider %q", name)
		}
		seen[name] = true
	}

	// Agents
	d := cfg.Agents.Defaults
	if t := d.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("agents.defaults.temperature", "must be between 0 and 2, got %g", *t)
	}
	if d.MaxTokens < 0 {
		add("agents.defaults.maxTokens", "must not be negative, got %d", d.MaxTokens)
	}
	if d.MaxRetries < 0 {
		add("agents.defaults.maxRetries", "must not be negative, got %d", d.MaxRetries)
	}
	if d.RetryDelayMs < 0 {
		add("agents.defaults.retryDelayMs", "must not be negative, got %d", d.RetryDelayMs)
	}
	if d.HistoryWindow < 0 {
		add("agents.defaults.historyWindow", "must not be negative, got %d", d.HistoryWindow)
	}
	if d.CallTimeoutSeconds < 0 {
		add("agents.defaults.callTimeoutSeconds", "must not be negative, got %d", d.CallTimeoutSeconds)
	}
	if th := d.HandoffThreshold; th != nil && (*th < 0 || *th > 1) {
		add("agents.defaults.handoffThreshold", "must be between 0 and 1, got %g", *th)
	}
	ids := map[string]bool{}
	for i, a := range cfg.Agents.List {
		path := fmt.Sprintf("agents.list[%d]", i)
		if a.ID == "" {
			add(path+".id", "id is required")
			continue
		}
		if ids[a.ID] {
			add(path+".id", "duplicate agent id %q", a.ID)
		}
		ids[a.ID] = true
	}

	// Store, logging, notify
	oneOf("store.driver", cfg.Store.Driver, validDrivers)
	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.style", cfg.Logging.Style, validLogStyles)
	oneOf("notify.slack.minPriority", cfg.Notify.Slack.MinPriority, validPriorities)
	if cfg.Notify.Slack.Channel != "" && cfg.Notify.Slack.Token == "" {
		add("notify.slack.token", "required when a channel is set")
	}

	// Health schedule
	if cfg.Health.Schedule != "" {
		if _, err := CronParser.Parse(cfg.Health.Schedule); err != nil {
			add("health.schedule", "invalid cron expression: %v", err)
		}
	}

	return issues
}

package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSecret resolves ${ENV} references in a credential. A reference that
// stays unresolved yields "" so it never counts as a configured credential.
func expandSecret(s string) string {
	s = expandEnvVars(s)
	if envVarPattern.MatchString(s) {
		return ""
	}
	return s
}

func expandSecrets(cfg *Config) {
	cfg.Providers.Gemini.APIKey = expandSecret(cfg.Providers.Gemini.APIKey)
	cfg.Providers.Qwen.APIKey = expandSecret(cfg.Providers.Qwen.APIKey)
	cfg.Providers.OpenAI.APIKey = expandSecret(cfg.Providers.OpenAI.APIKey)
	cfg.Notify.Slack.Token = expandSecret(cfg.Notify.Slack.Token)
}

// Load reads the config file, applies defaults and environment overrides.
// A missing file yields defaults plus environment.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	case os.IsNotExist(err):
	default:
		return Defaults(), err
	}

	applyDefaults(&cfg)
	expandSecrets(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "loopback"
	}
	if len(cfg.Providers.Order) == 0 {
		cfg.Providers.Order = append([]string(nil), DefaultProviderOrder...)
	}

	d := &cfg.Agents.Defaults
	if d.Temperature == nil {
		t := DefaultTemperature
		d.Temperature = &t
	}
	if d.MaxTokens == 0 {
		d.MaxTokens = DefaultMaxTokens
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.RetryDelayMs == 0 {
		d.RetryDelayMs = DefaultRetryDelayMs
	}
	if d.HistoryWindow == 0 {
		d.HistoryWindow = DefaultHistoryWindow
	}
	if d.CallTimeoutSeconds == 0 {
		d.CallTimeoutSeconds = DefaultCallTimeoutSeconds
	}
	if d.HandoffThreshold == nil {
		th := DefaultHandoffThreshold
		d.HandoffThreshold = &th
	}
	if d.DefaultAgent == "" {
		d.DefaultAgent = DefaultAgentID
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = "pretty"
	}
	if cfg.Notify.Slack.MinPriority == "" {
		cfg.Notify.Slack.MinPriority = "high"
	}
}

// applyEnvOverrides reads CRMDESK_* and provider key variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRMDESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CRMDESK_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("CRMDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CRMDESK_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// Provider keys fall back to the conventional variable names.
	if cfg.Providers.Gemini.APIKey == "" {
		cfg.Providers.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Providers.Qwen.APIKey == "" {
		cfg.Providers.Qwen.APIKey = firstEnv("QWEN_API_KEY", "DASHSCOPE_API_KEY")
	}
	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Notify.Slack.Token == "" {
		cfg.Notify.Slack.Token = os.Getenv("SLACK_BOT_TOKEN")
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

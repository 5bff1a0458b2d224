package config

// Config is the root configuration for crmdesk.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Providers ProvidersConfig `yaml:"providers,omitempty"`
	Agents    AgentsConfig    `yaml:"agents,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Health    HealthConfig    `yaml:"health,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ProvidersConfig holds credentials for the hosted model APIs.
// Order lists provider names by preference; empty means gemini, qwen, openai.
type ProvidersConfig struct {
	Order  []string      `yaml:"order,omitempty"`
	Gemini ProviderEntry `yaml:"gemini,omitempty"`
	Qwen   ProviderEntry `yaml:"qwen,omitempty"`
	OpenAI ProviderEntry `yaml:"openai,omitempty"`
}

// ProviderEntry configures one provider.
type ProviderEntry struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// AgentsConfig defines routing defaults and agent overrides.
type AgentsConfig struct {
	Defaults AgentDefaults `yaml:"defaults,omitempty"`
	List     []AgentEntry  `yaml:"list,omitempty"`
}

// AgentDefaults are the dispatch parameters shared by all agents.
type AgentDefaults struct {
	Temperature        *float64 `yaml:"temperature,omitempty"`
	MaxTokens          int      `yaml:"maxTokens,omitempty"`
	MaxRetries         int      `yaml:"maxRetries,omitempty"`
	RetryDelayMs       int      `yaml:"retryDelayMs,omitempty"`
	HistoryWindow      int      `yaml:"historyWindow,omitempty"`
	CallTimeoutSeconds int      `yaml:"callTimeoutSeconds,omitempty"`
	HandoffThreshold   *float64 `yaml:"handoffThreshold,omitempty"`
	DefaultAgent       string   `yaml:"defaultAgent,omitempty"`
}

// AgentEntry patches a seeded agent or declares a new one.
type AgentEntry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name,omitempty"`
	Type         string   `yaml:"type,omitempty"`
	Description  string   `yaml:"description,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	Active       *bool    `yaml:"active,omitempty"`
}

// StoreConfig selects the agent log backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

// HealthConfig schedules background provider probes.
type HealthConfig struct {
	Schedule string `yaml:"schedule,omitempty"` // 5-field cron; empty disables
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	Slack SlackConfig `yaml:"slack,omitempty"`
}

// SlackConfig posts handoff and health alerts to a Slack channel.
type SlackConfig struct {
	Token       string `yaml:"token,omitempty"`
	Channel     string `yaml:"channel,omitempty"`
	MinPriority string `yaml:"minPriority,omitempty"` // "low" | "medium" | "high"
}

// Enabled reports whether Slack notifications can be sent.
func (s SlackConfig) Enabled() bool {
	return s.Token != "" && s.Channel != ""
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Disabled bool `yaml:"disabled,omitempty"`
}

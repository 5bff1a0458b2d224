package cli

import (
	"fmt"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/gateway"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
	"github.com/soyeahso/crmdesk/internal/store"
)

// logBackend is written by the agent layer and read by the admin endpoints.
type logBackend interface {
	agent.LogSink
	gateway.LogReader
}

// stack is the agent layer assembled from config.
type stack struct {
	cfg          config.Config
	providers    *llm.Registry
	registry     *agent.Registry
	orchestrator *agent.Orchestrator
	manager      *agent.Manager
	logs         logBackend
	hooks        *hooks.Manager
	metrics      *metrics.Metrics
	db           *store.DB
}

func buildStack(cfg config.Config, p config.Paths, log *logging.Logger) (*stack, error) {
	s := &stack{
		cfg:       cfg,
		providers: llm.NewRegistryFromConfig(cfg.Providers, log),
		registry:  agent.NewRegistryFromConfig(cfg.Agents.List),
		hooks:     hooks.NewManager(log),
		metrics:   metrics.New(),
	}

	logs, db, err := openLogBackend(cfg.Store, p, log)
	if err != nil {
		return nil, err
	}
	s.logs, s.db = logs, db

	d := cfg.Agents.Defaults
	s.orchestrator = agent.NewOrchestrator(s.registry, s.logs, log,
		agent.WithThreshold(d.HandoffThresholdValue()),
		agent.WithDefaultAgent(d.DefaultAgent),
		agent.WithOrchestratorHooks(s.hooks),
		agent.WithOrchestratorMetrics(s.metrics),
	)
	s.manager = agent.NewManager(s.providers, s.logs, log,
		agent.WithSettings(agent.SettingsFromConfig(d)),
		agent.WithManagerHooks(s.hooks),
		agent.WithManagerMetrics(s.metrics),
	)
	return s, nil
}

func openLogBackend(cfg config.StoreConfig, p config.Paths, log *logging.Logger) (logBackend, *store.DB, error) {
	if cfg.Driver == "memory" {
		log.Info().Msg("using in-memory agent log")
		return agent.NewMemoryLogSink(), nil, nil
	}
	path := p.LogDB(cfg.Path)
	db, err := store.Open(path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening agent log: %w", err)
	}
	log.Info().Str("path", path).Msg("using SQLite agent log")
	return store.NewLogStore(db), db, nil
}

// Close waits for async hooks and closes the log database.
func (s *stack) Close() error {
	s.hooks.Wait()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// loadConfig reads the config file and fails on validation issues.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

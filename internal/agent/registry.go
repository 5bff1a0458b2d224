package agent

import (
	"errors"
	"slices"
	"sync"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/domain"
)

// ErrAgentNotFound is returned for lookups of an unregistered agent id.
var ErrAgentNotFound = errors.New("agent not found")

// DefaultAgents returns the seeded agent roster.
func DefaultAgents() []domain.AgentConfig {
	return []domain.AgentConfig{
		{
			ID:           "sales-001",
			Name:         "Sales Specialist",
			Type:         domain.AgentSales,
			Description:  "Expert in lead qualification, follow-ups, and conversion optimization",
			Active:       true,
			Capabilities: []string{"lead_scoring", "objection_handling", "closing_techniques"},
			Model:        "qwen-plus",
		},
		{
			ID:           "support-001",
			Name:         "Customer Success",
			Type:         domain.AgentSupport,
			Description:  "Focused on issue resolution and customer satisfaction",
			Active:       true,
			Capabilities: []string{"issue_resolution", "escalation_management", "retention_strategies"},
			Model:        "qwen-turbo",
		},
		{
			ID:           "analytics-001",
			Name:         "Data Analyst",
			Type:         domain.AgentPlanning,
			Description:  "Provides insights, reports, and business intelligence",
			Active:       true,
			Capabilities: []string{"data_analysis", "trend_forecasting", "process_optimization"},
			Model:        "qwen-max",
		},
		{
			ID:           "scaie-001",
			Name:         "SCAIE Specialist",
			Type:         domain.AgentSCAIE,
			Description:  "Handles SCAIE service inquiries, quotes, and company information",
			Active:       true,
			Capabilities: []string{"lead_generation", "quote_requests", "customer_engagement"},
			Model:        "qwen-turbo",
		},
	}
}

// Registry holds the agent roster. Order is registration order and is used
// for every "first match" lookup.
type Registry struct {
	mu     sync.RWMutex
	agents []domain.AgentConfig
}

// NewRegistry creates a registry over a copy of agents.
func NewRegistry(agents []domain.AgentConfig) *Registry {
	r := &Registry{agents: make([]domain.AgentConfig, 0, len(agents))}
	for _, a := range agents {
		r.agents = append(r.agents, cloneAgent(a))
	}
	return r
}

// NewRegistryFromConfig seeds the default roster and applies config entries.
// Entries with a known id patch that agent; unknown ids are appended.
func NewRegistryFromConfig(entries []config.AgentEntry) *Registry {
	agents := DefaultAgents()
	for _, e := range entries {
		i := slices.IndexFunc(agents, func(a domain.AgentConfig) bool { return a.ID == e.ID })
		if i < 0 {
			agents = append(agents, domain.AgentConfig{ID: e.ID, Name: e.ID, Active: true})
			i = len(agents) - 1
		}
		a := &agents[i]
		if e.Name != "" {
			a.Name = e.Name
		}
		if e.Type != "" {
			a.Type = domain.AgentType(e.Type)
		}
		if e.Description != "" {
			a.Description = e.Description
		}
		if len(e.Capabilities) > 0 {
			a.Capabilities = e.Capabilities
		}
		if e.Model != "" {
			a.Model = e.Model
		}
		if e.Active != nil {
			a.Active = *e.Active
		}
	}
	return NewRegistry(agents)
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (domain.AgentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ID == id {
			return cloneAgent(a), true
		}
	}
	return domain.AgentConfig{}, false
}

// List returns every registered agent.
func (r *Registry) List() []domain.AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AgentConfig, len(r.agents))
	for i, a := range r.agents {
		out[i] = cloneAgent(a)
	}
	return out
}

// Active returns the agents currently accepting conversations.
func (r *Registry) Active() []domain.AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AgentConfig
	for _, a := range r.agents {
		if a.Active {
			out = append(out, cloneAgent(a))
		}
	}
	return out
}

// FindByType returns the first agent of type t, active or not.
func (r *Registry) FindByType(t domain.AgentType) (domain.AgentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Type == t {
			return cloneAgent(a), true
		}
	}
	return domain.AgentConfig{}, false
}

// SetActive toggles an agent on or off.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.agents {
		if r.agents[i].ID == id {
			r.agents[i].Active = active
			return nil
		}
	}
	return ErrAgentNotFound
}

func cloneAgent(a domain.AgentConfig) domain.AgentConfig {
	a.Capabilities = slices.Clone(a.Capabilities)
	return a
}

package domain

import "slices"

// AgentType names an agent persona family.
type AgentType string

const (
	AgentGeneral   AgentType = "general"
	AgentSales     AgentType = "sales"
	AgentSupport   AgentType = "support"
	AgentPlanning  AgentType = "planning"
	AgentAnalytics AgentType = "analytics"
	AgentSCAIE     AgentType = "scaie"
)

// AgentConfig describes a registered agent persona.
type AgentConfig struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         AgentType `json:"type"`
	Description  string    `json:"description"`
	Active       bool      `json:"active"`
	Capabilities []string  `json:"capabilities"`
	Model        string    `json:"model"`
}

// HasAnyCapability reports whether the agent declares at least one of caps.
func (a AgentConfig) HasAnyCapability(caps []string) bool {
	for _, c := range caps {
		if slices.Contains(a.Capabilities, c) {
			return true
		}
	}
	return false
}

// AgentSummary is the public view of an agent used by health and list endpoints.
type AgentSummary struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Type   AgentType `json:"type"`
	Active bool      `json:"active"`
}

// Summary returns the public view of the agent.
func (a AgentConfig) Summary() AgentSummary {
	return AgentSummary{ID: a.ID, Name: a.Name, Type: a.Type, Active: a.Active}
}

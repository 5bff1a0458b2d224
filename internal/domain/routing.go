package domain

// Urgency ranks how quickly a request needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Rank orders urgencies; unknown values rank below low.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	}
	return 0
}

// Intent is the classifier's reading of a message.
type Intent struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Urgency    Urgency  `json:"urgency"`
	Keywords   []string `json:"keywords"`
}

// RoutingDecision is the orchestrator's verdict for one turn.
type RoutingDecision struct {
	AgentID       string `json:"agentId"`
	ShouldHandoff bool   `json:"shouldHandoff"`
	Reason        string `json:"reason"`
}

// HandoffContext is recorded as metadata on a handoff log row.
type HandoffContext struct {
	FromAgent string         `json:"fromAgent"`
	ToAgent   string         `json:"toAgent"`
	Reason    string         `json:"reason"`
	Context   map[string]any `json:"context"`
	Priority  Urgency        `json:"priority"`
}

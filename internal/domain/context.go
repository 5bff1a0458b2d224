package domain

// Well-known AgentContext metadata keys.
const (
	MetaContactCount   = "contactCount"
	MetaRecentActivity = "recentActivity"
	MetaChannel        = "channel"
	MetaHandoffNote    = "handoffNote"
)

// AgentContext carries per-request routing state. AgentType changes when the
// orchestrator hands the conversation off.
type AgentContext struct {
	SessionID           string         `json:"sessionId"`
	AgentType           AgentType      `json:"agentType"`
	ConversationHistory []ChatMessage  `json:"conversationHistory"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Channel returns the log channel recorded for this request.
func (c AgentContext) Channel(fallback string) string {
	if ch, ok := c.Metadata[MetaChannel].(string); ok && ch != "" {
		return ch
	}
	return fallback
}

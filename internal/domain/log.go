package domain

import (
	"errors"
	"strings"
	"time"
)

// Agent log actions.
const (
	ActionChatStart   = "chat_start"
	ActionChatSuccess = "chat_success"
	ActionChatError   = "chat_error"
	ActionTaskHandoff = "task_handoff"
)

// Agent log channels.
const (
	ChannelWebChat   = "web_chat"
	ChannelInternal  = "internal"
	ChannelWebSocket = "websocket"
)

// AgentLog is an append-only audit row; one per lifecycle event.
type AgentLog struct {
	ID             string         `json:"id"`
	AgentType      string         `json:"agent_type"`
	Action         string         `json:"action"`
	Channel        string         `json:"channel"`
	Success        bool           `json:"success"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

var (
	ErrLogAgentTypeRequired = errors.New("agent type is required")
	ErrLogActionRequired    = errors.New("action is required")
)

// Validate checks the fields every log row must carry.
func (l AgentLog) Validate() error {
	if l.AgentType == "" {
		return ErrLogAgentTypeRequired
	}
	if strings.TrimSpace(l.Action) == "" {
		return ErrLogActionRequired
	}
	return nil
}

// AgentLogStats aggregates log rows per agent type.
type AgentLogStats struct {
	AgentType         string  `json:"agent_type"`
	Total             int     `json:"total"`
	Successes         int     `json:"successes"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// SuccessRate returns successes/total, or 0 with no rows.
func (s AgentLogStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// MessageMeta is optional per-message annotation.
type MessageMeta struct {
	AgentType string `json:"agent_type,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Success   *bool  `json:"success,omitempty"`
}

// ChatMessage is one turn of a conversation. Treat it as immutable once built.
type ChatMessage struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Metadata  *MessageMeta `json:"metadata,omitempty"`
}

// NewChatMessage builds a message with a fresh id and the current time.
func NewChatMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// LastContent returns the content of the final message, or "" when empty.
func LastContent(history []ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Content
}

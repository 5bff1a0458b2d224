package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/crmdesk/internal/domain"
)

const maxChatBody = 1 << 20

// chatRequest is the body of POST /api/chat and the params of chat.send.
// Messages stays raw so a non-array value can be reported precisely.
type chatRequest struct {
	Messages  json.RawMessage `json:"messages"`
	AgentType string          `json:"agentType"`
	SessionID string          `json:"sessionId"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Stream    *bool           `json:"stream,omitempty"`
}

// wireMessage is the accepted shape of one message. Client timestamps and
// metadata are ignored.
type wireMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatInput is a validated chat request.
type chatInput struct {
	Messages  []domain.ChatMessage
	AgentType string
	SessionID string
	Metadata  map[string]any
	Stream    bool
}

// parseChatRequest decodes and validates a chat request. On failure it
// returns the client-facing message.
func parseChatRequest(data []byte) (chatInput, string) {
	var req chatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chatInput{}, MsgInvalidBody
	}
	return req.validate()
}

func (req chatRequest) validate() (chatInput, string) {
	var wire []wireMessage
	if len(req.Messages) == 0 || json.Unmarshal(req.Messages, &wire) != nil || len(wire) == 0 {
		return chatInput{}, MsgInvalidMessages
	}
	if req.SessionID == "" {
		return chatInput{}, MsgSessionIDRequired
	}

	now := time.Now().UTC()
	msgs := make([]domain.ChatMessage, len(wire))
	for i, w := range wire {
		id := w.ID
		if id == "" {
			id = uuid.NewString()
		}
		msgs[i] = domain.ChatMessage{ID: id, Role: domain.Role(w.Role), Content: w.Content, Timestamp: now}
	}

	in := chatInput{
		Messages:  msgs,
		AgentType: req.AgentType,
		SessionID: req.SessionID,
		Metadata:  req.Metadata,
		Stream:    true,
	}
	if in.AgentType == "" {
		in.AgentType = string(domain.AgentGeneral)
	}
	if req.Stream != nil {
		in.Stream = *req.Stream
	}
	return in, ""
}

// chatTurn is a routed request ready for the agent manager.
type chatTurn struct {
	Context  domain.AgentContext
	Decision domain.RoutingDecision
}

// prepareTurn routes the conversation and builds the agent context. On
// handoff the context carries the new agent's type and a system note.
func (s *Server) prepareTurn(ctx context.Context, in chatInput, channel string) chatTurn {
	decision := s.orchestrator.Route(ctx, in.Messages, in.AgentType, in.SessionID)

	agentType := domain.AgentType(in.AgentType)
	if a, ok := s.orchestrator.Resolve(decision.AgentID); ok {
		agentType = a.Type
	}

	meta := maps.Clone(in.Metadata)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[domain.MetaChannel] = channel
	delete(meta, domain.MetaHandoffNote)

	// The system message keeps the transfer in the recorded history; system
	// messages never reach the model, so the note rides in the prompt too.
	history := slices.Clone(in.Messages)
	if decision.ShouldHandoff {
		note := fmt.Sprintf("Transferring to %s specialist: %s", agentType, decision.Reason)
		history = append(history, domain.ChatMessage{
			ID:        "handoff-" + uuid.NewString(),
			Role:      domain.RoleSystem,
			Content:   note,
			Timestamp: time.Now().UTC(),
		})
		meta[domain.MetaHandoffNote] = note
	}

	return chatTurn{
		Context: domain.AgentContext{
			SessionID:           in.SessionID,
			AgentType:           agentType,
			ConversationHistory: history,
			Metadata:            meta,
		},
		Decision: decision,
	}
}

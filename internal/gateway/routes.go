package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/domain"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/health", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("PATCH /api/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/logs/stats", s.handleLogStats)

	if !s.cfg.Metrics.Disabled && s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all WebSocket method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("chat.send", s.rpcChatSend)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	r, _ := http.NewRequestWithContext(rc.Client.Context(), http.MethodGet, "/health", nil)
	rc.Respond(s.health(r))
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	rc.Respond(map[string]any{"agents": s.registry.List()})
}

// chatSendResult is the final response to chat.send.
type chatSendResult struct {
	AgentType domain.AgentType `json:"agentType"`
	AgentID   string           `json:"agentId"`
	SessionID string           `json:"sessionId"`
	Handoff   bool             `json:"handoff"`
	Reason    string           `json:"reason"`
	Model     string           `json:"model"`
	Content   string           `json:"content"`
}

// rpcChatSend runs one chat turn for a WebSocket client. Streamed text
// arrives as chat.delta events before the final response.
func (s *Server) rpcChatSend(rc *RequestContext) {
	var req chatRequest
	if err := rc.Params(&req); err != nil {
		rc.RespondError("invalid_params", MsgInvalidBody)
		return
	}
	in, msg := req.validate()
	if msg != "" {
		rc.RespondError("invalid_params", msg)
		return
	}

	ctx := rc.Client.Context()
	turn := s.prepareTurn(ctx, in, domain.ChannelWebSocket)
	result := chatSendResult{
		AgentType: turn.Context.AgentType,
		AgentID:   turn.Decision.AgentID,
		SessionID: turn.Context.SessionID,
		Handoff:   turn.Decision.ShouldHandoff,
		Reason:    turn.Decision.Reason,
	}
	if turn.Decision.ShouldHandoff {
		rc.Client.SendEvent(EventHandoff, map[string]any{
			"requestId": rc.Frame.ID,
			"agentId":   turn.Decision.AgentID,
			"agentType": turn.Context.AgentType,
			"reason":    turn.Decision.Reason,
		}, s.eventSeq.Add(1))
	}

	res, err := s.manager.Process(ctx, turn.Context.ConversationHistory, turn.Context, in.Stream)
	switch r := res.(type) {
	case agent.Streamed:
		if err != nil {
			rc.respondShape(classifyError(err).shape())
			return
		}
		result.Model = r.Model
		result.Content = s.relayDeltas(ctx, rc, r.Chunks)
	case agent.Completed:
		if err != nil {
			rc.respondShape(classifyError(err).shape())
			return
		}
		result.Model = r.Response.Model
		result.Content = r.Response.Content
	default:
		if err == nil {
			err = errors.New("no result")
		}
		rc.respondShape(classifyError(err).shape())
		return
	}
	rc.Respond(result)
}

// relayDeltas forwards chunks as sentence-sized chat.delta events and
// returns the full text.
func (s *Server) relayDeltas(ctx context.Context, rc *RequestContext, chunks <-chan string) string {
	var full strings.Builder
	f := newSentenceFlusher(s.flusher, func(text string) {
		if err := rc.Client.SendEvent(EventChatDelta, map[string]any{
			"requestId": rc.Frame.ID,
			"content":   text,
		}, s.eventSeq.Add(1)); err != nil && ctx.Err() == nil {
			s.log.Debug().Err(err).Str("connId", rc.Client.ConnID).Msg("delta send failed")
		}
	})
	for chunk := range chunks {
		full.WriteString(chunk)
		f.OnDelta(chunk)
	}
	f.Flush()
	return full.String()
}

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/domain"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

// HealthResponse is returned by the health endpoints and the health RPC.
type HealthResponse struct {
	Status       string                `json:"status"`
	Timestamp    time.Time             `json:"timestamp"`
	Models       map[string]bool       `json:"models"`
	ActiveAgents int                   `json:"activeAgents"`
	Agents       []domain.AgentSummary `json:"agents"`
}

func (s *Server) health(r *http.Request) HealthResponse {
	report, ok := agent.HealthReport{}, false
	if s.healthCache != nil {
		report, ok = s.healthCache.Last()
	}
	if !ok {
		report = s.manager.HealthCheck(r.Context())
	}
	active := s.registry.Active()
	agents := make([]domain.AgentSummary, len(active))
	for i, a := range active {
		agents[i] = a.Summary()
	}
	return HealthResponse{
		Status:       report.Status,
		Timestamp:    report.CheckedAt,
		Models:       report.Models,
		ActiveAgents: len(active),
		Agents:       agents,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health(r))
}

// handleChat serves POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxChatBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}
	in, msg := parseChatRequest(body)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	turn := s.prepareTurn(r.Context(), in, domain.ChannelWebChat)
	result, err := s.manager.Process(r.Context(), turn.Context.ConversationHistory, turn.Context, in.Stream)

	setAgentHeaders(w.Header(), turn)
	switch res := result.(type) {
	case agent.Streamed:
		// Exhausted retries arrive as a one-chunk apology stream.
		s.writeStream(w, r, res)
	case agent.Completed:
		if errors.Is(err, agent.ErrNoProviderConfigured) {
			writeAPIError(w, classifyError(err))
			return
		}
		status := http.StatusOK
		if err != nil {
			status = classifyError(err).Status
		}
		writeJSON(w, status, res.Response)
	default:
		if err == nil {
			err = errors.New("no result")
		}
		writeAPIError(w, classifyError(err))
	}
}

func setAgentHeaders(h http.Header, turn chatTurn) {
	h.Set("X-Agent-Type", string(turn.Context.AgentType))
	h.Set("X-Agent-Id", turn.Decision.AgentID)
	h.Set("X-Session-Id", turn.Context.SessionID)
	if turn.Decision.ShouldHandoff {
		h.Set("X-Agent-Handoff", "true")
	}
}

// writeStream copies chunks to the body, flushing after each one.
func (s *Server) writeStream(w http.ResponseWriter, r *http.Request, res agent.Streamed) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for chunk := range res.Chunks {
		if _, err := io.WriteString(w, chunk); err != nil {
			s.log.Debug().Err(err).Msg("stream write failed")
			continue
		}
		rc.Flush()
	}
	if err := r.Context().Err(); err != nil {
		s.log.Debug().Err(err).Msg("client went away during stream")
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.registry.List()})
}

type agentPatch struct {
	Active *bool `json:"active"`
}

// handleUpdateAgent serves PATCH /api/agents/{id}.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var p agentPatch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBody)).Decode(&p); err != nil || p.Active == nil {
		writeError(w, http.StatusBadRequest, "active (bool) is required")
		return
	}

	id := r.PathValue("id")
	if err := s.registry.SetActive(id, *p.Active); err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.SetActiveAgents(len(s.registry.Active()))
	s.log.Info().Str("agent", id).Bool("active", *p.Active).Msg("agent status updated")

	a, _ := s.registry.Get(id)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log store not configured")
		return
	}
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := s.logs.Recent(r.Context(), limit, r.URL.Query().Get("agentType"))
	if err != nil {
		s.log.Error().Err(err).Msg("reading logs")
		writeError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}
	if logs == nil {
		logs = []domain.AgentLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log store not configured")
		return
	}
	stats, err := s.logs.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("reading log stats")
		writeError(w, http.StatusInternalServerError, "failed to read log stats")
		return
	}
	if stats == nil {
		stats = []domain.AgentLogStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.respondShape(ErrorShape{Code: code, Message: message})
}

func (rc *RequestContext) respondShape(e ErrorShape) {
	if err := rc.Client.RespondError(rc.Frame.ID, e); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error")
	}
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

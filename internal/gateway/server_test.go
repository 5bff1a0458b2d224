package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	logs    *agent.MemoryLogSink
	hooks   *hooks.Manager
	metrics *metrics.Metrics
}

// newTestEnv wires the default roster to the given mock providers. Each
// mock serves the single model "<name>-model".
func newTestEnv(t *testing.T, clients ...*llm.MockClient) *testEnv {
	t.Helper()
	log := logging.Nop()

	providers := llm.NewRegistry(log)
	for _, c := range clients {
		model := c.ProviderName + "-model"
		providers.Register(llm.Provider{
			Name:        c.ProviderName,
			Client:      c,
			SelectModel: func(domain.AgentType, []llm.Message) string { return model },
			Models:      []string{model},
		})
	}

	registry := agent.NewRegistry(agent.DefaultAgents())
	logs := agent.NewMemoryLogSink()
	h := hooks.NewManager(log)
	m := metrics.New()

	settings := agent.DefaultSettings()
	settings.CallTimeout = 5 * time.Second
	noSleep := func(context.Context, time.Duration) error { return nil }

	orch := agent.NewOrchestrator(registry, logs, log, agent.WithOrchestratorMetrics(m))
	mgr := agent.NewManager(providers, logs, log,
		agent.WithSettings(settings),
		agent.WithSleep(noSleep),
		agent.WithManagerMetrics(m),
	)

	srv := New(config.Defaults(), registry, orch, mgr, log,
		WithLogReader(logs),
		WithHooks(h),
		WithMetrics(m),
		WithFlusher(FlusherConfig{IdleTimeout: 20 * time.Millisecond}),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, logs: logs, hooks: h, metrics: m}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// dialWS connects and completes the handshake.
func dialWS(t *testing.T, ts *httptest.Server) (*websocket.Conn, HelloOK) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	req, err := NewRequest("connect-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	require.Equal(t, FrameTypeResponse, res.Type)
	require.NotNil(t, res.OK)
	require.True(t, *res.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(res.Payload, &hello))
	return conn, hello
}

// call sends one request and collects every frame up to its response.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var events []Frame
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeEvent {
			events = append(events, f)
			continue
		}
		if f.Type == FrameTypeResponse && f.ID == id {
			return f, events
		}
	}
}

func TestWebSocketHandshake(t *testing.T) {
	env := newTestEnv(t, &llm.MockClient{ProviderName: "qwen"})
	_, hello := dialWS(t, env.ts)

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{"agents.list", "chat.send", "health"}, hello.Features.Methods)
	assert.Contains(t, hello.Features.Events, EventChatDelta)
	assert.Equal(t, maxWSPayload, hello.Policy.MaxPayload)

	assert.Eventually(t, func() bool { return env.srv.clients.Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshakeRejectsNonConnect(t *testing.T) {
	env := newTestEnv(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := NewRequest("r1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	require.NotNil(t, res.Error)
	assert.Equal(t, "protocol_error", res.Error.Code)
}

func TestWebSocketHandshakeRejectsNewerProtocol(t *testing.T) {
	env := newTestEnv(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := NewRequest("c1", "connect", ConnectParams{MinProtocol: ProtocolVersion + 1, MaxProtocol: ProtocolVersion + 1})
	require.NoError(t, conn.WriteJSON(req))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	require.NotNil(t, res.Error)
	assert.Equal(t, "protocol_error", res.Error.Code)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env.ts), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRPCUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env.ts)

	res, _ := call(t, conn, "r1", "sessions.list", nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, "method_not_found", res.Error.Code)
}

func TestRPCHealth(t *testing.T) {
	env := newTestEnv(t, &llm.MockClient{ProviderName: "qwen"})
	conn, _ := dialWS(t, env.ts)

	res, _ := call(t, conn, "h1", "health", nil)
	require.Nil(t, res.Error)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(res.Payload, &health))
	assert.Equal(t, agent.StatusHealthy, health.Status)
	assert.Equal(t, map[string]bool{"qwen-model": true}, health.Models)
	assert.Equal(t, 4, health.ActiveAgents)
}

func TestRPCAgentsList(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env.ts)

	res, _ := call(t, conn, "a1", "agents.list", nil)
	var body struct {
		Agents []domain.AgentConfig `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &body))
	require.Len(t, body.Agents, 4)
	assert.Equal(t, "sales-001", body.Agents[0].ID)
}

func TestRPCChatSendStreams(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "qwen",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return llm.StreamOf("Thanks for asking about SCAIE. ", "Call us at ", agent.SCAIEPhone, " for a quote."), nil
		},
	}
	env := newTestEnv(t, mock)
	conn, _ := dialWS(t, env.ts)

	res, events := call(t, conn, "chat-1", "chat.send", map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "I want a quote for your services, do you handle SCAIE?"}},
		"agentType": "general",
		"sessionId": "ws-s1",
	})
	require.Nil(t, res.Error)

	var result chatSendResult
	require.NoError(t, json.Unmarshal(res.Payload, &result))
	assert.Equal(t, domain.AgentSCAIE, result.AgentType)
	assert.Equal(t, "scaie-001", result.AgentID)
	assert.True(t, result.Handoff)
	assert.Equal(t, "qwen-model", result.Model)
	assert.Contains(t, result.Content, agent.SCAIEPhone)

	require.NotEmpty(t, events)
	assert.Equal(t, EventHandoff, events[0].Event)

	var deltas strings.Builder
	for _, ev := range events[1:] {
		require.Equal(t, EventChatDelta, ev.Event)
		var p struct {
			RequestID string `json:"requestId"`
			Content   string `json:"content"`
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &p))
		assert.Equal(t, "chat-1", p.RequestID)
		deltas.WriteString(p.Content)
	}
	assert.Equal(t, result.Content, deltas.String())

	var channels []string
	for _, e := range env.logs.Entries() {
		if e.Action == domain.ActionChatStart {
			channels = append(channels, e.Channel)
		}
	}
	assert.Equal(t, []string{domain.ChannelWebSocket}, channels)
}

func TestRPCChatSendNonStreaming(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "qwen"}
	env := newTestEnv(t, mock)
	conn, _ := dialWS(t, env.ts)

	res, events := call(t, conn, "chat-2", "chat.send", map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "hello"}},
		"agentType": "sales",
		"sessionId": "ws-s2",
		"stream":    false,
	})
	require.Nil(t, res.Error)
	assert.Empty(t, events)

	var result chatSendResult
	require.NoError(t, json.Unmarshal(res.Payload, &result))
	assert.Equal(t, domain.AgentSales, result.AgentType)
	assert.False(t, result.Handoff)
	assert.Equal(t, "mock response", result.Content)
}

func TestRPCChatSendValidation(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "qwen"}
	env := newTestEnv(t, mock)
	conn, _ := dialWS(t, env.ts)

	res, _ := call(t, conn, "chat-3", "chat.send", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	require.NotNil(t, res.Error)
	assert.Equal(t, "invalid_params", res.Error.Code)
	assert.Equal(t, MsgSessionIDRequired, res.Error.Message)
	assert.Zero(t, mock.Calls())
}

func TestRPCChatSendNoProvider(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env.ts)

	res, _ := call(t, conn, "chat-4", "chat.send", map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "hello"}},
		"sessionId": "ws-s4",
	})
	require.NotNil(t, res.Error)
	assert.Equal(t, "not_configured", res.Error.Code)
	assert.Equal(t, MsgNoProvider, res.Error.Message)
}

func TestHealthDegradedBroadcast(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialWS(t, env.ts)
	require.Eventually(t, func() bool { return env.srv.clients.Count() == 1 }, time.Second, 10*time.Millisecond)

	env.hooks.Emit(context.Background(), hooks.EventHealthDegraded, map[string]any{"status": "degraded"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, "health.degraded", f.Event)
}

func TestServerStartAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Start(ctx) }()

	require.Eventually(t, func() bool { return env.srv.Addr() != "" }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 3000, "", "127.0.0.1:3000"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"custom_default", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom_host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"empty_fallback", "", 5000, "", "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ServerConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}

func TestRPCChatSendStreamOpenExhausted(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "qwen",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return nil, &llm.ProviderError{Provider: "qwen", Code: 503, Message: "network error: refused"}
		},
	}
	env := newTestEnv(t, mock)
	conn, _ := dialWS(t, env.ts)

	res, events := call(t, conn, "chat-5", "chat.send", map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "hello"}},
		"agentType": "sales",
		"sessionId": "ws-s5",
	})
	require.NotNil(t, res.Error)
	assert.Equal(t, "network_error", res.Error.Code)
	assert.True(t, res.Error.Retryable)
	assert.Empty(t, events)
}

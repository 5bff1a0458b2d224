package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProviders registers each mock as a provider whose only model is
// "<name>-model".
func testProviders(clients ...*llm.MockClient) *llm.Registry {
	reg := llm.NewRegistry(logging.Nop())
	for _, c := range clients {
		model := c.ProviderName + "-model"
		reg.Register(llm.Provider{
			Name:        c.ProviderName,
			Client:      c,
			SelectModel: func(domain.AgentType, []llm.Message) string { return model },
			Models:      []string{model},
		})
	}
	return reg
}

func testSettings() Settings {
	s := DefaultSettings()
	s.CallTimeout = 5 * time.Second
	return s
}

func newTestManager(reg *llm.Registry, opts ...ManagerOption) (*Manager, *MemoryLogSink, *fakeSleep) {
	logs := NewMemoryLogSink()
	fs := &fakeSleep{}
	opts = append([]ManagerOption{WithSettings(testSettings()), WithSleep(fs.Sleep)}, opts...)
	return NewManager(reg, logs, logging.Nop(), opts...), logs, fs
}

func salesContext() domain.AgentContext {
	return domain.AgentContext{SessionID: "s1", AgentType: domain.AgentSales}
}

func drain(t *testing.T, r Result) []string {
	t.Helper()
	s, ok := r.(Streamed)
	require.True(t, ok, "expected a streamed result, got %T", r)
	var out []string
	for c := range s.Chunks {
		out = append(out, c)
	}
	return out
}

func completed(t *testing.T, r Result) Response {
	t.Helper()
	c, ok := r.(Completed)
	require.True(t, ok, "expected a completed result, got %T", r)
	return c.Response
}

// --- Non-streaming ---

func TestProcessComplete(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "qwen",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "Here is how to close the deal."}, nil
		},
	}
	m, logs, fs := newTestManager(testProviders(mock))

	msgs := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "ignored"},
		{Role: domain.RoleUser, Content: "How do I close this deal?"},
	}
	res, err := m.Process(context.Background(), msgs, salesContext(), false)
	require.NoError(t, err)

	resp := completed(t, res)
	assert.True(t, resp.Success)
	assert.Equal(t, "Here is how to close the deal.", resp.Content)
	assert.Equal(t, domain.AgentSales, resp.AgentType)
	assert.Equal(t, "qwen-model", resp.Model)
	assert.Empty(t, resp.Error)
	assert.GreaterOrEqual(t, resp.ProcessingTime, int64(0))

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "qwen-model", req.Model)
	assert.Equal(t, PersonaPrompt(domain.AgentSales), req.System)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "How do I close this deal?"}}, req.Messages)
	assert.Equal(t, 2000, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.7, *req.Temperature)

	assert.Empty(t, fs.Delays())
	assert.Equal(t, []string{domain.ActionChatStart, domain.ActionChatSuccess}, logs.Actions())
}

func TestProcessSCAIEPrompt(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "gemini"}
	m, _, _ := newTestManager(testProviders(mock))

	ac := domain.AgentContext{
		SessionID: "s1",
		AgentType: domain.AgentSCAIE,
		Metadata:  map[string]any{domain.MetaContactCount: 12},
	}
	_, err := m.Process(context.Background(), history("I want a quote, do you handle SCAIE?"), ac, false)
	require.NoError(t, err)

	sys := mock.Requests()[0].System
	assert.Contains(t, sys, SCAIEPhone)
	assert.Contains(t, sys, "12 contacts")
}

func TestProcessLogRows(t *testing.T) {
	m, logs, _ := newTestManager(testProviders(&llm.MockClient{ProviderName: "qwen"}))

	ac := salesContext()
	ac.Metadata = map[string]any{domain.MetaChannel: domain.ChannelWebSocket}
	_, err := m.Process(context.Background(), history("hi"), ac, false)
	require.NoError(t, err)

	entries := logs.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "sales", e.AgentType)
		assert.Equal(t, domain.ChannelWebSocket, e.Channel)
		assert.Equal(t, "s1", e.Metadata["sessionId"])
	}
	assert.False(t, entries[0].Success)
	assert.True(t, entries[1].Success)
	assert.Equal(t, "qwen-model", entries[1].Metadata["model"])
	assert.Equal(t, "qwen", entries[1].Metadata["provider"])
}

func TestProcessRetriesWithBackoff(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "qwen",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "qwen", Message: "network error: connection reset"}
		},
	}
	mt := metrics.New()
	m, logs, fs := newTestManager(testProviders(mock), WithManagerMetrics(mt))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.Error(t, err)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fs.Delays())

	resp := completed(t, res)
	assert.False(t, resp.Success)
	assert.Equal(t, FallbackContent, resp.Content)
	assert.Equal(t, "error", resp.Model)
	assert.Contains(t, resp.Error, "connection reset")

	assert.Equal(t, []string{domain.ActionChatStart, domain.ActionChatError}, logs.Actions())
	assert.Contains(t, scrapeMetrics(t, mt), `crmdesk_provider_retries_total{provider="qwen"} 2`)
}

func TestProcessRecoversOnRetry(t *testing.T) {
	var calls int
	mock := &llm.MockClient{
		ProviderName: "qwen",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("timeout")
			}
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	m, _, fs := newTestManager(testProviders(mock))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.NoError(t, err)
	assert.Equal(t, "ok", completed(t, res).Content)
	assert.Equal(t, []time.Duration{time.Second}, fs.Delays())
}

func TestProcessNoProviderConfigured(t *testing.T) {
	reg := llm.NewRegistry(logging.Nop())
	reg.Register(llm.Provider{
		Name:          "gemini",
		Client:        &llm.MockClient{ProviderName: "gemini"},
		HasCredential: func() bool { return false },
	})
	m, logs, fs := newTestManager(reg)

	res, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.ErrorIs(t, err, ErrNoProviderConfigured)
	assert.Empty(t, fs.Delays())
	assert.Equal(t, FallbackContent, completed(t, res).Content)
	assert.Equal(t, []string{domain.ActionChatStart, domain.ActionChatError}, logs.Actions())

	_, err = m.Process(context.Background(), history("hi"), salesContext(), true)
	assert.ErrorIs(t, err, ErrNoProviderConfigured)
}

func TestProcessQuotaFailover(t *testing.T) {
	first := &llm.MockClient{
		ProviderName: "gemini",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "gemini", Code: http.StatusTooManyRequests, Message: "quota exceeded"}
		},
	}
	second := &llm.MockClient{ProviderName: "qwen"}
	m, _, fs := newTestManager(testProviders(first, second))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.NoError(t, err)

	resp := completed(t, res)
	assert.Equal(t, "mock response", resp.Content)
	assert.Equal(t, "qwen-model", resp.Model)
	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 1, second.Calls())
	assert.Empty(t, fs.Delays())
}

func TestProcessAuthErrorDoesNotFailOver(t *testing.T) {
	first := &llm.MockClient{
		ProviderName: "gemini",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "gemini", Code: http.StatusUnauthorized, Message: "bad key"}
		},
	}
	second := &llm.MockClient{ProviderName: "qwen"}
	m, _, _ := newTestManager(testProviders(first, second))

	_, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.Error(t, err)
	assert.True(t, llm.IsAuthError(err))
	assert.Equal(t, 0, second.Calls())
}

func TestProcessLogFailureIsIgnored(t *testing.T) {
	logs := &MemoryLogSink{Err: errors.New("db down")}
	m := NewManager(testProviders(&llm.MockClient{ProviderName: "qwen"}), logs, logging.Nop(),
		WithSettings(testSettings()))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.NoError(t, err)
	assert.True(t, completed(t, res).Success)
}

func TestProcessNilLogSink(t *testing.T) {
	m := NewManager(testProviders(&llm.MockClient{ProviderName: "qwen"}), nil, logging.Nop(),
		WithSettings(testSettings()))
	_, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.NoError(t, err)
}

func TestProcessHooksAndMetrics(t *testing.T) {
	h := hooks.NewManager(logging.Nop())
	mt := metrics.New()

	var mu sync.Mutex
	var events []string
	for _, ev := range []string{hooks.EventChatCompleted, hooks.EventChatFailed} {
		h.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			events = append(events, p.Event+":"+p.String("agentType"))
			mu.Unlock()
			return nil
		})
	}

	ok := &llm.MockClient{ProviderName: "qwen"}
	m, _, _ := newTestManager(testProviders(ok), WithManagerHooks(h), WithManagerMetrics(mt))
	_, err := m.Process(context.Background(), history("hi"), salesContext(), false)
	require.NoError(t, err)

	bad := &llm.MockClient{
		ProviderName: "qwen",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("boom")
		},
	}
	m, _, _ = newTestManager(testProviders(bad), WithManagerHooks(h), WithManagerMetrics(mt))
	_, err = m.Process(context.Background(), history("hi"), domain.AgentContext{SessionID: "s2", AgentType: domain.AgentSupport}, false)
	require.Error(t, err)
	h.Wait()

	mu.Lock()
	assert.ElementsMatch(t, []string{"chat_completed:sales", "chat_failed:support"}, events)
	mu.Unlock()

	body := scrapeMetrics(t, mt)
	assert.Contains(t, body, `crmdesk_chat_requests_total{agent_type="sales",outcome="success"} 1`)
	assert.Contains(t, body, `crmdesk_chat_requests_total{agent_type="support",outcome="error"} 1`)
}

// --- Streaming ---

func TestProcessStream(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "qwen"}
	m, logs, _ := newTestManager(testProviders(mock))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), true)
	require.NoError(t, err)

	s := res.(Streamed)
	assert.Equal(t, domain.AgentSales, s.AgentType)
	assert.Equal(t, "qwen-model", s.Model)
	assert.Equal(t, []string{"mock ", "stream response"}, drain(t, res))

	entries := logs.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionChatSuccess, entries[1].Action)
	assert.Equal(t, len("mock stream response"), entries[1].Metadata["responseLength"])
}

func TestProcessStreamMidStreamError(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "qwen",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			ch := make(chan llm.StreamEvent, 2)
			ch <- llm.StreamEvent{Type: llm.EventDelta, Content: "partial"}
			ch <- llm.StreamEvent{Type: llm.EventError, Error: "connection reset"}
			close(ch)
			return ch, nil
		},
	}
	m, logs, _ := newTestManager(testProviders(mock))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), true)
	require.NoError(t, err)

	chunks := drain(t, res)
	require.Len(t, chunks, 2)
	assert.Equal(t, "partial", chunks[0])
	assert.Equal(t, StreamErrorContent("connection reset"), chunks[1])
	assert.True(t, strings.Contains(chunks[1], "technical difficulties"))
	assert.Equal(t, []string{domain.ActionChatStart, domain.ActionChatError}, logs.Actions())
}

func TestProcessStreamOpenFailure(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "qwen",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return nil, errors.New("network error: refused")
		},
	}
	m, logs, fs := newTestManager(testProviders(mock))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), true)
	require.Error(t, err)
	assert.Equal(t, 3, mock.Calls())
	assert.Len(t, fs.Delays(), 2)
	assert.Equal(t, []string{domain.ActionChatStart, domain.ActionChatError}, logs.Actions())

	assert.Equal(t, domain.AgentSales, res.(Streamed).AgentType)
	assert.Equal(t, "error", res.(Streamed).Model)
	assert.Equal(t, []string{StreamErrorContent(err.Error())}, drain(t, res))
}

func TestProcessStreamNoProvider(t *testing.T) {
	m, logs, fs := newTestManager(llm.NewRegistry(logging.Nop()))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), true)
	assert.ErrorIs(t, err, ErrNoProviderConfigured)
	assert.Nil(t, res)
	assert.Empty(t, fs.Delays())
	assert.Equal(t, []string{domain.ActionChatStart, domain.ActionChatError}, logs.Actions())
}

func TestProcessStreamQuotaFailover(t *testing.T) {
	first := &llm.MockClient{
		ProviderName: "gemini",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return nil, &llm.ProviderError{Provider: "gemini", Code: http.StatusTooManyRequests, Message: "rate limited"}
		},
	}
	second := &llm.MockClient{
		ProviderName: "openai",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return llm.StreamOf("from ", "openai"), nil
		},
	}
	m, _, _ := newTestManager(testProviders(first, second))

	res, err := m.Process(context.Background(), history("hi"), salesContext(), true)
	require.NoError(t, err)
	assert.Equal(t, "openai-model", res.(Streamed).Model)
	assert.Equal(t, []string{"from ", "openai"}, drain(t, res))
}

// --- PrepareMessages ---

func TestPrepareMessages(t *testing.T) {
	msgs := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "1"},
		{Role: domain.RoleAssistant, Content: "2"},
		{Role: "tool", Content: "dropped"},
		{Role: domain.RoleUser, Content: "3"},
	}

	all := PrepareMessages(msgs, 0)
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "1"},
		{Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"},
	}, all)

	last2 := PrepareMessages(msgs, 2)
	assert.Equal(t, []llm.Message{
		{Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"},
	}, last2)

	assert.Empty(t, PrepareMessages(nil, 10))
}

func TestPrepareMessagesWindowOfTen(t *testing.T) {
	var msgs []domain.ChatMessage
	for i := 0; i < 15; i++ {
		msgs = append(msgs, domain.ChatMessage{Role: domain.RoleUser, Content: string(rune('a' + i))})
	}
	out := PrepareMessages(msgs, 10)
	require.Len(t, out, 10)
	assert.Equal(t, "f", out[0].Content)
	assert.Equal(t, "o", out[9].Content)
}

func TestSettingsFromDefaults(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 0.7, s.Temperature)
	assert.Equal(t, 2000, s.MaxTokens)
	assert.Equal(t, 3, s.MaxAttempts)
	assert.Equal(t, time.Second, s.RetryDelay)
	assert.Equal(t, 10, s.HistoryWindow)
	assert.Equal(t, 30*time.Second, s.CallTimeout)
}

func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	return w.Body.String()
}

package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
)

// Fallback texts returned to users when every attempt failed.
const (
	FallbackContent = "I apologize, but I'm experiencing technical difficulties. Please try again."
	fallbackModel   = "error"
)

// StreamErrorContent is the chunk written when a stream fails to open or
// fails mid-way.
func StreamErrorContent(err string) string {
	return "I apologize, but I'm experiencing technical difficulties: " + err + ". Please try again in a moment."
}

// Settings are the dispatch parameters shared by every agent.
type Settings struct {
	Temperature   float64
	MaxTokens     int
	MaxAttempts   int
	RetryDelay    time.Duration
	HistoryWindow int
	CallTimeout   time.Duration
}

// SettingsFromConfig converts config defaults into Settings.
func SettingsFromConfig(d config.AgentDefaults) Settings {
	return Settings{
		Temperature:   d.TemperatureValue(),
		MaxTokens:     d.MaxTokens,
		MaxAttempts:   d.MaxRetries,
		RetryDelay:    d.RetryDelay(),
		HistoryWindow: d.HistoryWindow,
		CallTimeout:   d.CallTimeout(),
	}
}

// DefaultSettings returns the stock dispatch parameters.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Defaults().Agents.Defaults)
}

// Result is either Streamed or Completed.
type Result interface {
	isResult()
}

// Streamed carries text chunks. Chunks is closed after the last one.
type Streamed struct {
	Chunks    <-chan string
	AgentType domain.AgentType
	Model     string
}

// Completed carries a fully materialized response.
type Completed struct {
	Response Response
}

func (Streamed) isResult()  {}
func (Completed) isResult() {}

// Response is the non-streaming chat reply.
type Response struct {
	Content        string           `json:"content"`
	Success        bool             `json:"success"`
	AgentType      domain.AgentType `json:"agentType"`
	ProcessingTime int64            `json:"processingTime"`
	Model          string           `json:"model"`
	Error          string           `json:"error,omitempty"`
}

// Manager turns a conversation into a model reply for one agent persona.
type Manager struct {
	providers *llm.Registry
	client    *FailoverClient
	settings  Settings
	logs      LogSink
	hooks     *hooks.Manager
	metrics   *metrics.Metrics
	sleep     SleepFunc
	log       *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSettings overrides the dispatch parameters.
func WithSettings(s Settings) ManagerOption {
	return func(m *Manager) { m.settings = s }
}

// WithSleep replaces the real-clock backoff sleep.
func WithSleep(fn SleepFunc) ManagerOption {
	return func(m *Manager) { m.sleep = fn }
}

// WithManagerHooks emits chat_completed and chat_failed on h.
func WithManagerHooks(h *hooks.Manager) ManagerOption {
	return func(m *Manager) { m.hooks = h }
}

// WithManagerMetrics records chat and retry metrics on mt.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a manager over the provider table. logs may be nil.
func NewManager(providers *llm.Registry, logs LogSink, log *logging.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		providers: providers,
		settings:  DefaultSettings(),
		logs:      logs,
		sleep:     Sleep,
		log:       log.Sub("agent.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.client = NewFailoverClient(providers, m.settings.CallTimeout, m.metrics, log)
	return m
}

// Process answers messages as the agent named in ac. When every attempt
// fails the result is still usable alongside the error: a Completed
// fallback, or a Streamed apology chunk. Only a stream with no provider
// configured yields a nil result.
func (m *Manager) Process(ctx context.Context, messages []domain.ChatMessage, ac domain.AgentContext, stream bool) (Result, error) {
	start := time.Now()
	m.record(ctx, ac, domain.ActionChatStart, 0, map[string]any{"messageCount": len(messages)})

	temp := m.settings.Temperature
	req := llm.CompletionRequest{
		System:      BuildSystemPrompt(ac),
		Messages:    PrepareMessages(messages, m.settings.HistoryWindow),
		MaxTokens:   m.settings.MaxTokens,
		Temperature: &temp,
	}

	if stream {
		return m.processStream(ctx, req, ac, start)
	}

	var resp *llm.CompletionResponse
	var d Dispatch
	err := m.retrier(&d).Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		resp, d, err = m.client.Complete(ctx, ac.AgentType, req)
		if err != nil {
			m.log.Warn().Int("attempt", attempt).Str("provider", d.Provider).Err(err).Msg("completion failed")
		}
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		m.fail(ctx, ac, elapsed, d, err)
		return Completed{Response: Response{
			Content:        FallbackContent,
			AgentType:      ac.AgentType,
			ProcessingTime: elapsed.Milliseconds(),
			Model:          fallbackModel,
			Error:          err.Error(),
		}}, err
	}

	m.succeed(ctx, ac, elapsed, d, map[string]any{"responseLength": len(resp.Content)})
	return Completed{Response: Response{
		Content:        resp.Content,
		Success:        true,
		AgentType:      ac.AgentType,
		ProcessingTime: elapsed.Milliseconds(),
		Model:          d.Model,
	}}, nil
}

func (m *Manager) processStream(ctx context.Context, req llm.CompletionRequest, ac domain.AgentContext, start time.Time) (Result, error) {
	var events <-chan llm.StreamEvent
	var d Dispatch
	err := m.retrier(&d).Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		events, d, err = m.client.Stream(ctx, ac.AgentType, req)
		if err != nil {
			m.log.Warn().Int("attempt", attempt).Str("provider", d.Provider).Err(err).Msg("stream open failed")
		}
		return err
	})
	if err != nil {
		m.fail(ctx, ac, time.Since(start), d, err)
		if errors.Is(err, ErrNoProviderConfigured) {
			return nil, err
		}
		return errorStream(ac, err), err
	}

	chunks := make(chan string)
	go func() {
		defer close(chunks)
		send := func(s string) bool {
			select {
			case chunks <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var streamErr error
		var length int
	loop:
		for ev := range events {
			switch ev.Type {
			case llm.EventDelta:
				length += len(ev.Content)
				if !send(ev.Content) {
					streamErr = ctx.Err()
					break loop
				}
			case llm.EventError:
				streamErr = errors.New(ev.Error)
				send(StreamErrorContent(ev.Error))
				break loop
			case llm.EventDone:
				break loop
			}
		}
		if streamErr == nil && ctx.Err() != nil {
			streamErr = ctx.Err()
		}

		// The request context may already be gone; the log rows still matter.
		bg := context.WithoutCancel(ctx)
		if streamErr != nil {
			m.fail(bg, ac, time.Since(start), d, streamErr)
			return
		}
		m.succeed(bg, ac, time.Since(start), d, map[string]any{"responseLength": length})
	}()

	return Streamed{Chunks: chunks, AgentType: ac.AgentType, Model: d.Model}, nil
}

// errorStream is a one-chunk stream carrying the apology for err.
func errorStream(ac domain.AgentContext, err error) Streamed {
	chunks := make(chan string, 1)
	chunks <- StreamErrorContent(err.Error())
	close(chunks)
	return Streamed{Chunks: chunks, AgentType: ac.AgentType, Model: fallbackModel}
}

// retrier counts each retry against the provider that last failed.
func (m *Manager) retrier(last *Dispatch) Retrier {
	return Retrier{
		MaxAttempts: m.settings.MaxAttempts,
		BaseDelay:   m.settings.RetryDelay,
		Sleep:       m.sleep,
		OnRetry: func(int, error) {
			m.metrics.IncRetry(last.Provider)
		},
	}
}

func (m *Manager) succeed(ctx context.Context, ac domain.AgentContext, elapsed time.Duration, d Dispatch, extra map[string]any) {
	meta := map[string]any{"model": d.Model, "provider": d.Provider, "processingTime": elapsed.Milliseconds()}
	for k, v := range extra {
		meta[k] = v
	}
	m.record(ctx, ac, domain.ActionChatSuccess, elapsed, meta)
	m.metrics.ObserveChat(string(ac.AgentType), true, elapsed)
	m.hooks.EmitAsync(ctx, hooks.EventChatCompleted, map[string]any{
		"agentType": string(ac.AgentType),
		"sessionId": ac.SessionID,
		"model":     d.Model,
	})
	m.log.Info().
		Str("agentType", string(ac.AgentType)).
		Str("sessionId", ac.SessionID).
		Str("model", d.Model).
		Dur("duration", elapsed).
		Msg("response generated")
}

func (m *Manager) fail(ctx context.Context, ac domain.AgentContext, elapsed time.Duration, d Dispatch, err error) {
	m.record(ctx, ac, domain.ActionChatError, elapsed, map[string]any{
		"error":          err.Error(),
		"model":          d.Model,
		"processingTime": elapsed.Milliseconds(),
	})
	m.metrics.ObserveChat(string(ac.AgentType), false, elapsed)
	m.hooks.EmitAsync(ctx, hooks.EventChatFailed, map[string]any{
		"agentType": string(ac.AgentType),
		"sessionId": ac.SessionID,
		"error":     err.Error(),
	})
	m.log.Error().
		Str("agentType", string(ac.AgentType)).
		Str("sessionId", ac.SessionID).
		Err(err).
		Msg("chat failed")
}

// record writes one log row; sink failures are only warned about.
func (m *Manager) record(ctx context.Context, ac domain.AgentContext, action string, elapsed time.Duration, meta map[string]any) {
	if m.logs == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["sessionId"] = ac.SessionID

	err := m.logs.Append(ctx, domain.AgentLog{
		AgentType:      string(ac.AgentType),
		Action:         action,
		Channel:        ac.Channel(domain.ChannelWebChat),
		Success:        action == domain.ActionChatSuccess,
		ResponseTimeMs: elapsed.Milliseconds(),
		Metadata:       meta,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("action", action).Msg("failed to log interaction")
	}
}

// PrepareMessages drops system and unknown-role messages and keeps the last
// window messages in order. A window of zero or less keeps everything.
func PrepareMessages(messages []domain.ChatMessage, window int) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		role := domain.Role(strings.TrimSpace(string(msg.Role)))
		if role == domain.RoleSystem || !role.Valid() {
			continue
		}
		out = append(out, llm.Message{Role: string(role), Content: msg.Content})
	}
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

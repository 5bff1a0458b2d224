package agent

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
)

// ErrNoProviderConfigured means no provider in the table has a credential.
var ErrNoProviderConfigured = errors.New("No AI service configured")

// Dispatch names the provider and model that served a call.
type Dispatch struct {
	Provider string
	Model    string
}

// FailoverClient sends a request to the first configured provider and moves
// down the table when a provider rejects it for quota or rate limits.
type FailoverClient struct {
	providers *llm.Registry
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       *logging.Logger
}

// NewFailoverClient creates a client over providers. timeout bounds each
// outbound call; zero means no extra bound.
func NewFailoverClient(providers *llm.Registry, timeout time.Duration, m *metrics.Metrics, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		providers: providers,
		timeout:   timeout,
		metrics:   m,
		log:       log.Sub("failover"),
	}
}

// Configured reports whether any provider can be called.
func (f *FailoverClient) Configured() bool {
	return len(f.providers.Configured()) > 0
}

// Complete returns the first successful completion.
func (f *FailoverClient) Complete(ctx context.Context, agentType domain.AgentType, req llm.CompletionRequest) (*llm.CompletionResponse, Dispatch, error) {
	var resp *llm.CompletionResponse
	d, err := f.each(agentType, req, func(p llm.Provider, req llm.CompletionRequest) error {
		callCtx, cancel := f.withTimeout(ctx)
		defer cancel()
		var err error
		resp, err = p.Client.Complete(callCtx, req)
		return err
	})
	if err != nil {
		return nil, d, err
	}
	if resp.Model != "" {
		d.Model = resp.Model
	}
	return resp, d, nil
}

// Stream returns the first stream that opens. The call timeout covers the
// whole stream and is released when the returned channel closes.
func (f *FailoverClient) Stream(ctx context.Context, agentType domain.AgentType, req llm.CompletionRequest) (<-chan llm.StreamEvent, Dispatch, error) {
	var out <-chan llm.StreamEvent
	d, err := f.each(agentType, req, func(p llm.Provider, req llm.CompletionRequest) error {
		callCtx, cancel := f.withTimeout(ctx)
		events, err := p.Client.Stream(callCtx, req)
		if err != nil {
			cancel()
			return err
		}
		relay := make(chan llm.StreamEvent)
		go f.relay(ctx, callCtx, cancel, events, relay)
		out = relay
		return nil
	})
	return out, d, err
}

// relay forwards events until a terminal one, and reports a call timeout
// that cut the provider stream short.
func (f *FailoverClient) relay(ctx, callCtx context.Context, cancel context.CancelFunc, events <-chan llm.StreamEvent, out chan<- llm.StreamEvent) {
	defer cancel()
	defer close(out)

	terminal := false
	for ev := range events {
		select {
		case out <- ev:
			terminal = ev.Type == llm.EventDone || ev.Type == llm.EventError
		case <-callCtx.Done():
		}
		if terminal || callCtx.Err() != nil {
			break
		}
	}
	if !terminal && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		select {
		case out <- llm.StreamEvent{Type: llm.EventError, Error: "request timeout"}:
		case <-ctx.Done():
		}
	}
}

func (f *FailoverClient) each(agentType domain.AgentType, req llm.CompletionRequest, call func(llm.Provider, llm.CompletionRequest) error) (Dispatch, error) {
	providers := f.providers.Configured()
	if len(providers) == 0 {
		return Dispatch{}, ErrNoProviderConfigured
	}

	var lastErr error
	var d Dispatch
	for i, p := range providers {
		d = Dispatch{Provider: p.Name, Model: req.Model}
		if p.SelectModel != nil {
			d.Model = p.SelectModel(agentType, req.Messages)
		}
		preq := req
		preq.Model = d.Model

		err := call(p, preq)
		if err == nil {
			return d, nil
		}
		lastErr = err

		if llm.IsQuotaError(err) && i < len(providers)-1 {
			f.metrics.IncRetry(p.Name)
			f.log.Warn().
				Str("provider", p.Name).
				Str("model", d.Model).
				Err(err).
				Msg("quota exceeded, trying next provider")
			continue
		}
		return d, err
	}
	return d, lastErr
}

func (f *FailoverClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DashScopeBaseURL is Qwen's OpenAI-compatible endpoint.
const DashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// OpenAICompatClient talks to any OpenAI-compatible chat completions API.
// It serves both OpenAI itself and Qwen through DashScope.
type OpenAICompatClient struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAICompatClient creates a client registered under name. An empty
// baseURL keeps the library default (api.openai.com).
func NewOpenAICompatClient(name, apiKey, baseURL, model string) *OpenAICompatClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAICompatClient{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name.
func (c *OpenAICompatClient) Name() string {
	return c.name
}

// Complete sends a non-streaming chat completion.
func (c *OpenAICompatClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	creq := c.buildRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Message: "empty response"}
	}

	model := resp.Model
	if model == "" {
		model = creq.Model
	}
	return &CompletionResponse{
		Content:    resp.Choices[0].Message.Content,
		StopReason: string(resp.Choices[0].FinishReason),
		Model:      model,
		Duration:   time.Since(start),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Stream opens a streaming chat completion.
func (c *OpenAICompatClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	creq := c.buildRequest(req)
	creq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, c.wrapError(err)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var full strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamEvent{
					Type:     EventDone,
					Response: &CompletionResponse{Content: full.String(), Model: creq.Model},
				})
				return
			}
			if err != nil {
				send(StreamEvent{Type: EventError, Error: c.wrapError(err).Error()})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			text := resp.Choices[0].Delta.Content
			full.WriteString(text)
			if !send(StreamEvent{Type: EventDelta, Content: text}) {
				return
			}
		}
	}()
	return events, nil
}

func (c *OpenAICompatClient) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	out := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
		Messages:  convertMessages(req.System, req.Messages),
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	return out
}

func convertMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// wrapError maps go-openai errors onto ProviderError so status codes survive.
func (c *OpenAICompatClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: c.name, Code: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: c.name, Code: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return transportError(c.name, err)
}

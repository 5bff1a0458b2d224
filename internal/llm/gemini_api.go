package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGeminiBaseURL is the public Generative Language endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAPIClient is a direct HTTP client for the Google Gemini API.
type GeminiAPIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiAPIClient creates a Gemini client. model is used when a request
// names none; an empty baseURL selects the public endpoint.
func NewGeminiAPIClient(apiKey, model, baseURL string) *GeminiAPIClient {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiAPIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name.
func (g *GeminiAPIClient) Name() string {
	return "gemini"
}

// Complete sends a non-streaming completion request to the Gemini API.
func (g *GeminiAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := g.modelFor(req)

	resp, err := g.post(ctx, g.endpoint(model, "generateContent", nil), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(g.Name(), err)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderError{Provider: g.Name(), Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	out := &CompletionResponse{
		Content:  result.text(),
		Model:    model,
		Duration: time.Since(start),
		Usage: Usage{
			InputTokens:  result.UsageMetadata.PromptTokenCount,
			OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		},
	}
	if len(result.Candidates) > 0 {
		out.StopReason = result.Candidates[0].FinishReason
	}
	return out, nil
}

// Stream opens a server-sent-events completion. Errors before the first
// byte of the body are returned directly; later ones arrive as "error" events.
func (g *GeminiAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := g.modelFor(req)
	q := url.Values{"alt": {"sse"}}

	resp, err := g.post(ctx, g.endpoint(model, "streamGenerateContent", q), req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go g.readStream(ctx, resp.Body, model, events)
	return events, nil
}

func (g *GeminiAPIClient) readStream(ctx context.Context, body io.ReadCloser, model string, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := newSSEScanner(body)
	var full strings.Builder
	for scanner.Scan() {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(scanner.Data()), &chunk); err != nil {
			continue
		}
		if text := chunk.text(); text != "" {
			full.WriteString(text)
			if !send(StreamEvent{Type: EventDelta, Content: text}) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		send(StreamEvent{Type: EventError, Error: transportError(g.Name(), err).Error()})
		return
	}

	send(StreamEvent{
		Type:     EventDone,
		Response: &CompletionResponse{Content: full.String(), Model: model},
	})
}

func (g *GeminiAPIClient) modelFor(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.model
}

func (g *GeminiAPIClient) endpoint(model, method string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("key", g.apiKey)
	return fmt.Sprintf("%s/models/%s:%s?%s", g.baseURL, url.PathEscape(model), method, q.Encode())
}

// post sends the request and turns any non-200 status into a ProviderError.
func (g *GeminiAPIClient) post(ctx context.Context, endpoint string, req CompletionRequest) (*http.Response, error) {
	payload, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, transportError(g.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Provider: g.Name(), Code: resp.StatusCode, Message: geminiErrorMessage(body)}
	}
	return resp, nil
}

func buildGeminiRequest(req CompletionRequest) geminiRequest {
	out := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return out
}

// geminiErrorMessage extracts error.message from an API error body.
func geminiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// API wire structures

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

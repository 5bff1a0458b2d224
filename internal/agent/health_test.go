package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/crmdesk/internal/llm"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckHealthy(t *testing.T) {
	mt := metrics.New()
	gemini := &llm.MockClient{ProviderName: "gemini"}
	qwen := &llm.MockClient{ProviderName: "qwen"}
	m, _, _ := newTestManager(testProviders(gemini, qwen), WithManagerMetrics(mt))

	report := m.HealthCheck(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.True(t, report.Healthy())
	assert.Equal(t, map[string]bool{"gemini-model": true, "qwen-model": true}, report.Models)
	assert.False(t, report.CheckedAt.IsZero())

	req := gemini.Requests()[0]
	assert.Equal(t, "gemini-model", req.Model)
	assert.Equal(t, 10, req.MaxTokens)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}, req.Messages)

	assert.Contains(t, scrapeMetrics(t, mt), `crmdesk_model_health{model="qwen-model"} 1`)
}

func TestHealthCheckDegraded(t *testing.T) {
	good := &llm.MockClient{ProviderName: "gemini"}
	bad := &llm.MockClient{
		ProviderName: "qwen",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("401 unauthorized")
		},
	}
	m, _, _ := newTestManager(testProviders(good, bad))

	report := m.HealthCheck(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, map[string]bool{"gemini-model": true, "qwen-model": false}, report.Models)
}

func TestHealthCheckProbesEveryModel(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "qwen"}
	reg := llm.NewRegistry(logging.Nop())
	reg.Register(llm.Provider{Name: "qwen", Client: mock, Models: llm.QwenModels})
	m, _, _ := newTestManager(reg)

	report := m.HealthCheck(context.Background())
	require.Len(t, report.Models, len(llm.QwenModels))
	assert.Equal(t, len(llm.QwenModels), mock.Calls())
	assert.True(t, report.Healthy())
}

func TestHealthCheckNoProviders(t *testing.T) {
	m, _, _ := newTestManager(llm.NewRegistry(logging.Nop()))
	report := m.HealthCheck(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Empty(t, report.Models)
}

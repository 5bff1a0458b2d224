package agent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/crmdesk/internal/llm"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// healthProbeLimit bounds concurrent probe calls.
const healthProbeLimit = 4

// HealthReport is the outcome of probing every configured model.
type HealthReport struct {
	Status    string          `json:"status"`
	Models    map[string]bool `json:"models"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// Healthy reports whether every probed model answered.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// HealthCheck sends a tiny prompt to every model of every configured
// provider. Probe failures mark the model false; they are never returned.
func (m *Manager) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{Models: map[string]bool{}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthProbeLimit)

	for _, p := range m.providers.Configured() {
		for _, model := range p.Models {
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(gctx, m.probeTimeout())
				defer cancel()
				_, err := p.Client.Complete(callCtx, llm.CompletionRequest{
					Model:     model,
					Messages:  []llm.Message{{Role: llm.RoleUser, Content: "Hello"}},
					MaxTokens: 10,
				})
				if err != nil {
					m.log.Debug().Str("provider", p.Name).Str("model", model).Err(err).Msg("health probe failed")
				}
				mu.Lock()
				report.Models[model] = err == nil
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Status = StatusDegraded
	if len(report.Models) > 0 {
		report.Status = StatusHealthy
		for _, ok := range report.Models {
			if !ok {
				report.Status = StatusDegraded
				break
			}
		}
	}
	report.CheckedAt = time.Now().UTC()
	m.metrics.SetModelHealth(report.Models)
	return report
}

func (m *Manager) probeTimeout() time.Duration {
	if m.settings.CallTimeout > 0 {
		return m.settings.CallTimeout
	}
	return 30 * time.Second
}

// Package monitor runs scheduled provider health probes.
package monitor

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soyeahso/crmdesk/internal/agent"
	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/logging"
)

// probeTimeout bounds one scheduled run.
const probeTimeout = 2 * time.Minute

// Checker probes every configured model.
type Checker interface {
	HealthCheck(ctx context.Context) agent.HealthReport
}

// Prober runs health checks on a cron schedule and remembers the last report.
type Prober struct {
	checker Checker
	hooks   *hooks.Manager
	log     *logging.Logger

	mu   sync.RWMutex
	last *agent.HealthReport
	cron *cron.Cron
}

// NewProber creates a prober. h may be nil.
func NewProber(checker Checker, h *hooks.Manager, log *logging.Logger) *Prober {
	return &Prober{checker: checker, hooks: h, log: log.Sub("monitor")}
}

// RunOnce probes now. health_degraded is emitted when the status turns
// degraded, not on every degraded run.
func (p *Prober) RunOnce(ctx context.Context) agent.HealthReport {
	report := p.checker.HealthCheck(ctx)

	p.mu.Lock()
	prev := p.last
	p.last = &report
	p.mu.Unlock()

	wasHealthy := prev == nil || prev.Healthy()
	switch {
	case !report.Healthy() && wasHealthy:
		failing := Failing(report)
		p.log.Warn().Strs("failing", failing).Msg("model health degraded")
		p.hooks.EmitAsync(ctx, hooks.EventHealthDegraded, map[string]any{
			"status":  report.Status,
			"failing": failing,
		})
	case report.Healthy() && !wasHealthy:
		p.log.Info().Int("models", len(report.Models)).Msg("model health recovered")
	default:
		p.log.Debug().Str("status", report.Status).Msg("health probe finished")
	}
	return report
}

// Last returns the most recent report, if any run has finished.
func (p *Prober) Last() (agent.HealthReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return agent.HealthReport{}, false
	}
	return *p.last, true
}

// Start schedules RunOnce with a 5-field cron expression.
func (p *Prober) Start(schedule string) error {
	if _, err := config.CronParser.Parse(schedule); err != nil {
		return fmt.Errorf("health schedule %q: %w", schedule, err)
	}

	c := cron.New(cron.WithParser(config.CronParser))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		p.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling health probe: %w", err)
	}

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()

	c.Start()
	p.log.Info().Str("schedule", schedule).Msg("health probes scheduled")
	return nil
}

// Stop halts the schedule and waits for a running probe to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Failing lists the models that failed their probe, sorted.
func Failing(r agent.HealthReport) []string {
	var out []string
	for model, ok := range r.Models {
		if !ok {
			out = append(out, model)
		}
	}
	slices.Sort(out)
	return out
}

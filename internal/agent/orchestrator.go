package agent

import (
	"context"
	"fmt"

	"github.com/soyeahso/crmdesk/internal/config"
	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/soyeahso/crmdesk/internal/hooks"
	"github.com/soyeahso/crmdesk/internal/intent"
	"github.com/soyeahso/crmdesk/internal/logging"
	"github.com/soyeahso/crmdesk/internal/metrics"
)

// Routing reasons.
const (
	ReasonInvalidAgent  = "Invalid current agent"
	ReasonAgentSuitable = "Current agent is suitable"
)

// orchestratorAgentType is the agent_type recorded on handoff log rows.
const orchestratorAgentType = "orchestrator"

// DefaultRequiredCapabilities maps a target agent type to the capabilities
// an agent needs to keep a conversation of that kind.
func DefaultRequiredCapabilities() map[domain.AgentType][]string {
	return map[domain.AgentType][]string{
		domain.AgentSales:    {"lead_scoring", "objection_handling", "closing_techniques"},
		domain.AgentSupport:  {"issue_resolution", "escalation_management", "retention_strategies"},
		domain.AgentPlanning: {"data_analysis", "trend_forecasting", "process_optimization"},
		domain.AgentSCAIE:    {"lead_generation", "quote_requests", "customer_engagement"},
	}
}

// generalist stands in for requests that name the "general" persona, which
// has no registry entry and no capabilities.
var generalist = domain.AgentConfig{
	ID:     string(domain.AgentGeneral),
	Name:   "General Assistant",
	Type:   domain.AgentGeneral,
	Active: true,
}

// Orchestrator decides, per turn, whether another agent should take over.
type Orchestrator struct {
	registry     *Registry
	classifier   *intent.Classifier
	required     map[domain.AgentType][]string
	threshold    float64
	defaultAgent string
	logs         LogSink
	hooks        *hooks.Manager
	metrics      *metrics.Metrics
	log          *logging.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClassifier replaces the stock keyword classifier.
func WithClassifier(c *intent.Classifier) OrchestratorOption {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithThreshold sets the minimum confidence that can trigger a handoff.
func WithThreshold(t float64) OrchestratorOption {
	return func(o *Orchestrator) { o.threshold = t }
}

// WithDefaultAgent sets the agent used when the current agent is unknown.
func WithDefaultAgent(id string) OrchestratorOption {
	return func(o *Orchestrator) { o.defaultAgent = id }
}

// WithRequiredCapabilities replaces the capability table.
func WithRequiredCapabilities(m map[domain.AgentType][]string) OrchestratorOption {
	return func(o *Orchestrator) { o.required = m }
}

// WithOrchestratorHooks emits agent_handoff events on m.
func WithOrchestratorHooks(m *hooks.Manager) OrchestratorOption {
	return func(o *Orchestrator) { o.hooks = m }
}

// WithOrchestratorMetrics counts handoffs on m.
func WithOrchestratorMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an orchestrator over registry. logs may be nil.
func NewOrchestrator(registry *Registry, logs LogSink, log *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:     registry,
		classifier:   intent.Default(),
		required:     DefaultRequiredCapabilities(),
		threshold:    config.DefaultHandoffThreshold,
		defaultAgent: config.DefaultAgentID,
		logs:         logs,
		log:          log.Sub("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classifier returns the classifier used for routing.
func (o *Orchestrator) Classifier() *intent.Classifier {
	return o.classifier
}

// Resolve maps a reference to an agent: a registered id first, then the
// first agent of that type, then the capability-less general persona.
func (o *Orchestrator) Resolve(ref string) (domain.AgentConfig, bool) {
	if a, ok := o.registry.Get(ref); ok {
		return a, true
	}
	if a, ok := o.registry.FindByType(domain.AgentType(ref)); ok {
		return a, true
	}
	if ref == string(domain.AgentGeneral) {
		return generalist, true
	}
	return domain.AgentConfig{}, false
}

// Route classifies the last message of history and returns the agent that
// should answer it.
func (o *Orchestrator) Route(ctx context.Context, history []domain.ChatMessage, current, sessionID string) domain.RoutingDecision {
	in := o.classifier.Classify(domain.LastContent(history))

	agent, ok := o.Resolve(current)
	if !ok {
		o.log.Warn().Str("agent", current).Str("sessionId", sessionID).Msg("unknown current agent, using default")
		o.handoff(ctx, domain.HandoffContext{
			FromAgent: current,
			ToAgent:   o.defaultAgent,
			Reason:    ReasonInvalidAgent,
			Context:   map[string]any{"intent": in, "sessionId": sessionID},
			Priority:  in.Urgency,
		})
		return domain.RoutingDecision{AgentID: o.defaultAgent, ShouldHandoff: true, Reason: ReasonInvalidAgent}
	}

	stay := domain.RoutingDecision{AgentID: agent.ID, Reason: ReasonAgentSuitable}
	if in.Confidence < o.threshold {
		return stay
	}

	target := o.classifier.TargetType(in.Category)
	if agent.HasAnyCapability(o.required[target]) {
		return stay
	}

	best, found := o.bestAgent(target)
	if !found || best.ID == agent.ID {
		return stay
	}

	o.handoff(ctx, domain.HandoffContext{
		FromAgent: agent.ID,
		ToAgent:   best.ID,
		Reason:    fmt.Sprintf("Intent requires %s expertise", in.Category),
		Context:   map[string]any{"intent": in, "sessionId": sessionID},
		Priority:  in.Urgency,
	})

	o.log.Info().
		Str("from", agent.ID).
		Str("to", best.ID).
		Str("category", in.Category).
		Float64("confidence", in.Confidence).
		Str("sessionId", sessionID).
		Msg("handing off conversation")

	return domain.RoutingDecision{
		AgentID:       best.ID,
		ShouldHandoff: true,
		Reason:        fmt.Sprintf("Transferring to %s for %s expertise", best.Name, in.Category),
	}
}

// bestAgent returns the first active agent of type t, or any active agent.
func (o *Orchestrator) bestAgent(t domain.AgentType) (domain.AgentConfig, bool) {
	active := o.registry.Active()
	for _, a := range active {
		if a.Type == t {
			return a, true
		}
	}
	if len(active) > 0 {
		return active[0], true
	}
	return domain.AgentConfig{}, false
}

func (o *Orchestrator) handoff(ctx context.Context, h domain.HandoffContext) {
	if o.logs != nil {
		err := o.logs.Append(ctx, domain.AgentLog{
			AgentType: orchestratorAgentType,
			Action:    domain.ActionTaskHandoff,
			Channel:   domain.ChannelInternal,
			Success:   true,
			Metadata: map[string]any{
				"fromAgent": h.FromAgent,
				"toAgent":   h.ToAgent,
				"reason":    h.Reason,
				"context":   h.Context,
				"priority":  h.Priority,
			},
		})
		if err != nil {
			o.log.Warn().Err(err).Msg("failed to log handoff")
		}
	}

	o.metrics.IncHandoff(h.FromAgent, h.ToAgent)
	o.hooks.EmitAsync(ctx, hooks.EventAgentHandoff, map[string]any{
		"fromAgent": h.FromAgent,
		"toAgent":   h.ToAgent,
		"reason":    h.Reason,
		"priority":  string(h.Priority),
		"sessionId": h.Context["sessionId"],
	})
}

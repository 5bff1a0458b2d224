package agent

import (
	"fmt"
	"strings"

	"github.com/soyeahso/crmdesk/internal/domain"
)

// SCAIE contact details quoted by the SCAIE persona.
const (
	SCAIEPhone   = "5535913417"
	SCAIEWebsite = "www.scaie.com.mx"
)

var personaPrompts = map[domain.AgentType]string{
	domain.AgentGeneral: `You are a professional CRM assistant with expertise in customer relationship management.
Help users manage contacts, analyze business data, and optimize their sales processes.
Be concise, actionable, and always maintain a professional tone.`,

	domain.AgentSales: `You are an expert sales assistant specializing in lead qualification and conversion optimization.
Your expertise includes: lead scoring, follow-up strategies, objection handling, and closing techniques.
Focus on converting prospects to clients and maximizing revenue opportunities.
Always provide specific, actionable sales advice.`,

	domain.AgentSupport: `You are a customer success specialist focused on issue resolution and relationship building.
Your expertise includes: troubleshooting, escalation management, customer retention, and satisfaction improvement.
Be empathetic, solution-focused, and always prioritize customer experience.
Provide clear steps and follow-up recommendations.`,

	domain.AgentPlanning: `You are a strategic business planning assistant with expertise in CRM optimization.
Your expertise includes: workflow automation, process improvement, resource allocation, and performance metrics.
Help users create actionable plans and optimize their business operations.
Focus on efficiency and measurable outcomes.`,

	domain.AgentAnalytics: `You are a data analyst specializing in CRM metrics and business intelligence.
Your expertise includes: data interpretation, trend analysis, performance forecasting, and actionable insights.
Help users understand their business metrics and make data-driven decisions.
Always provide specific recommendations based on data patterns.`,

	domain.AgentSCAIE: fmt.Sprintf(`You are the SCAIE specialist, representing SCAIE and its services.
Your expertise includes: answering questions about SCAIE services, preparing quote requests, and engaging prospective customers.
Collect the customer's needs and contact details so the team can follow up with a quote.
Always invite the customer to call %s or visit %s for quotes and more information.`, SCAIEPhone, SCAIEWebsite),
}

// PersonaPrompt returns the static prompt for an agent type, falling back to
// the general persona for unknown types.
func PersonaPrompt(t domain.AgentType) string {
	if p, ok := personaPrompts[t]; ok {
		return p
	}
	return personaPrompts[domain.AgentGeneral]
}

// BuildSystemPrompt returns the persona prompt plus any CRM context and
// handoff note carried in the request metadata.
func BuildSystemPrompt(ac domain.AgentContext) string {
	var b strings.Builder
	b.WriteString(PersonaPrompt(ac.AgentType))

	if n, ok := contactCount(ac.Metadata[domain.MetaContactCount]); ok {
		fmt.Fprintf(&b, "\n\nCurrent CRM context: You have access to %d contacts in the system.", n)
	}
	if activity, ok := ac.Metadata[domain.MetaRecentActivity].(string); ok && activity != "" {
		b.WriteString("\n\nRecent activity: ")
		b.WriteString(activity)
	}
	if note, ok := ac.Metadata[domain.MetaHandoffNote].(string); ok && note != "" {
		b.WriteString("\n\n")
		b.WriteString(note)
	}
	return b.String()
}

// contactCount accepts the numeric shapes JSON decoding and Go callers produce.
// Zero is treated as absent.
func contactCount(v any) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		n = int64(x)
	default:
		return 0, false
	}
	return n, n > 0
}

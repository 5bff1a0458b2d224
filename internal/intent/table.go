package intent

import "github.com/soyeahso/crmdesk/internal/domain"

// Category is one row of the keyword table.
type Category struct {
	Name     string
	Keywords []string
	Urgency  domain.Urgency
	// Target is the agent type that serves this category.
	Target domain.AgentType
}

// Override forces a category when any trigger substring is present.
type Override struct {
	Category   string
	Triggers   []string
	Confidence float64
	Urgency    domain.Urgency
	Keywords   []string
}

// CategoryGeneral is returned when nothing matches.
const CategoryGeneral = "general"

// DefaultCategories is the stock keyword table, in tie-break order.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:     "sales",
			Keywords: []string{"lead", "prospect", "quote", "price", "buy", "purchase", "deal", "close", "cost"},
			Urgency:  domain.UrgencyMedium,
			Target:   domain.AgentSales,
		},
		{
			Name:     "support",
			Keywords: []string{"problem", "issue", "error", "help", "broken", "not working", "urgent", "bug", "fix"},
			Urgency:  domain.UrgencyHigh,
			Target:   domain.AgentSupport,
		},
		{
			Name:     "analytics",
			Keywords: []string{"report", "data", "analysis", "metrics", "dashboard", "trend", "performance", "statistics"},
			Urgency:  domain.UrgencyLow,
			Target:   domain.AgentPlanning,
		},
		{
			Name:     "scaie",
			Keywords: []string{"scaie", "www.scaie.com.mx", "quote", "pricing", "services", "company", "information", "5535913417"},
			Urgency:  domain.UrgencyMedium,
			Target:   domain.AgentSCAIE,
		},
	}
}

// DefaultOverride routes anything that names the SCAIE business to its specialist.
func DefaultOverride() *Override {
	return &Override{
		Category:   "scaie",
		Triggers:   []string{"scaie", "5535913417", "www.scaie.com.mx"},
		Confidence: 0.6,
		Urgency:    domain.UrgencyMedium,
		Keywords:   []string{"scaie"},
	}
}

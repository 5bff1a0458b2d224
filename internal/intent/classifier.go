// Package intent maps free text to a routing category using fixed keyword tables.
package intent

import (
	"strings"

	"github.com/soyeahso/crmdesk/internal/domain"
)

// Classifier scores messages against a keyword table. It holds no mutable
// state, so one instance is safe for concurrent use.
type Classifier struct {
	categories []Category
	override   *Override
}

// New builds a classifier over the given table. A nil override disables it.
func New(categories []Category, override *Override) *Classifier {
	lowered := make([]Category, len(categories))
	for i, c := range categories {
		c.Keywords = lowerAll(c.Keywords)
		lowered[i] = c
	}
	if override != nil {
		o := *override
		o.Triggers = lowerAll(o.Triggers)
		override = &o
	}
	return &Classifier{categories: lowered, override: override}
}

// Default returns a classifier over the stock table.
func Default() *Classifier {
	return New(DefaultCategories(), DefaultOverride())
}

// Classify returns the best-fitting category for message.
// Confidence is the fraction of a category's keywords found in the message.
func (c *Classifier) Classify(message string) domain.Intent {
	text := strings.ToLower(message)

	best := domain.Intent{
		Category: CategoryGeneral,
		Urgency:  domain.UrgencyLow,
		Keywords: []string{},
	}
	for _, cat := range c.categories {
		if len(cat.Keywords) == 0 {
			continue
		}
		var matched []string
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		confidence := float64(len(matched)) / float64(len(cat.Keywords))
		if confidence > best.Confidence {
			best = domain.Intent{
				Category:   cat.Name,
				Confidence: confidence,
				Urgency:    cat.Urgency,
				Keywords:   matched,
			}
		}
	}

	if o := c.override; o != nil && containsAny(text, o.Triggers) {
		best = domain.Intent{
			Category:   o.Category,
			Confidence: o.Confidence,
			Urgency:    o.Urgency,
			Keywords:   append([]string(nil), o.Keywords...),
		}
	}
	return best
}

// TargetType returns the agent type that serves a category. Categories
// without a table entry map to an agent type of the same name.
func (c *Classifier) TargetType(category string) domain.AgentType {
	for _, cat := range c.categories {
		if cat.Name == category && cat.Target != "" {
			return cat.Target
		}
	}
	return domain.AgentType(category)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

package intent

import (
	"testing"

	"github.com/soyeahso/crmdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_NoMatch(t *testing.T) {
	c := Default()
	for _, msg := range []string{"", "hello there", "good morning"} {
		got := c.Classify(msg)
		assert.Equal(t, CategoryGeneral, got.Category, msg)
		assert.Zero(t, got.Confidence)
		assert.Equal(t, domain.UrgencyLow, got.Urgency)
		assert.NotNil(t, got.Keywords)
		assert.Empty(t, got.Keywords)
	}
}

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		category   string
		confidence float64
		urgency    domain.Urgency
		keywords   []string
	}{
		{
			name:       "sales",
			message:    "Can you give me a price quote for 10 licenses?",
			category:   "sales",
			confidence: 2.0 / 9.0,
			urgency:    domain.UrgencyMedium,
			keywords:   []string{"quote", "price"},
		},
		{
			name:       "support",
			message:    "Urgent problem: the export is broken, please help fix this issue",
			category:   "support",
			confidence: 6.0 / 9.0,
			urgency:    domain.UrgencyHigh,
			keywords:   []string{"problem", "issue", "help", "broken", "urgent", "fix"},
		},
		{
			name:       "analytics",
			message:    "The dashboard report shows a data trend",
			category:   "analytics",
			confidence: 0.5,
			urgency:    domain.UrgencyLow,
			keywords:   []string{"report", "data", "dashboard", "trend"},
		},
		{
			name:       "case insensitive",
			message:    "URGENT BUG",
			category:   "support",
			confidence: 2.0 / 9.0,
			urgency:    domain.UrgencyHigh,
			keywords:   []string{"urgent", "bug"},
		},
	}

	c := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.message)
			assert.Equal(t, tt.category, got.Category)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.urgency, got.Urgency)
			assert.Equal(t, tt.keywords, got.Keywords)
		})
	}
}

func TestClassify_BusinessOverride(t *testing.T) {
	c := Default()
	want := domain.Intent{
		Category:   "scaie",
		Confidence: 0.6,
		Urgency:    domain.UrgencyMedium,
		Keywords:   []string{"scaie"},
	}

	for _, msg := range []string{
		"I want a quote for your services, do you handle SCAIE?",
		"call me at 5535913417",
		"I saw www.scaie.com.mx yesterday",
		"problem error help broken bug fix urgent issue with scaie",
	} {
		assert.Equal(t, want, c.Classify(msg), msg)
	}
}

func TestClassify_OverrideKeywordsNotShared(t *testing.T) {
	c := Default()
	first := c.Classify("scaie")
	first.Keywords[0] = "mutated"
	assert.Equal(t, []string{"scaie"}, c.Classify("scaie").Keywords)
}

func TestClassify_Deterministic(t *testing.T) {
	c := Default()
	msg := "Our sales pipeline has a data problem"
	first := c.Classify(msg)
	for range 10 {
		assert.Equal(t, first, c.Classify(msg))
	}
}

func TestClassify_ConfidenceBounds(t *testing.T) {
	c := Default()
	msg := "lead prospect quote price buy purchase deal close cost"
	got := c.Classify(msg)
	assert.Equal(t, "sales", got.Category)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestClassify_TieKeepsTableOrder(t *testing.T) {
	c := New([]Category{
		{Name: "first", Keywords: []string{"alpha", "beta"}, Urgency: domain.UrgencyLow},
		{Name: "second", Keywords: []string{"gamma", "delta"}, Urgency: domain.UrgencyHigh},
	}, nil)

	got := c.Classify("alpha and gamma")
	assert.Equal(t, "first", got.Category)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestClassify_CustomTable(t *testing.T) {
	c := New([]Category{
		{Name: "billing", Keywords: []string{"Invoice", "Refund"}, Urgency: domain.UrgencyHigh, Target: domain.AgentSupport},
		{Name: "empty"},
	}, nil)

	got := c.Classify("where is my invoice")
	require.Equal(t, "billing", got.Category)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	assert.Equal(t, []string{"invoice"}, got.Keywords)

	assert.Equal(t, CategoryGeneral, c.Classify("scaie").Category, "nil override disables the trigger")
}

func TestTargetType(t *testing.T) {
	c := Default()
	assert.Equal(t, domain.AgentSales, c.TargetType("sales"))
	assert.Equal(t, domain.AgentSupport, c.TargetType("support"))
	assert.Equal(t, domain.AgentPlanning, c.TargetType("analytics"))
	assert.Equal(t, domain.AgentSCAIE, c.TargetType("scaie"))
	assert.Equal(t, domain.AgentType("general"), c.TargetType("general"))
}

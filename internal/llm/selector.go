package llm

import (
	"regexp"

	"github.com/soyeahso/crmdesk/internal/domain"
)

// ModelSelector picks a provider model for an agent type and conversation.
type ModelSelector func(agentType domain.AgentType, messages []Message) string

// Model tiers, by complexity score or total conversation length.
const (
	heavyComplexity  = 0.7
	heavyLength      = 2000
	mediumComplexity = 0.4
	mediumLength     = 1000
)

var complexityIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)analyz|analysis|report|data|metric|trend`),
	regexp.MustCompile(`(?i)plan|strategy|optimize|improve`),
	regexp.MustCompile(`(?i)calculate|compute|formula|equation`),
	regexp.MustCompile(`(?i)compare|contrast|evaluate|assess`),
	regexp.MustCompile(`(?i)integrate|automate|workflow|process`),
}

// Complexity returns the fraction of indicator patterns found in the last
// message, and the total content length of the conversation.
func Complexity(messages []Message) (score float64, length int) {
	for _, m := range messages {
		length += len(m.Content)
	}
	if len(messages) == 0 {
		return 0, length
	}
	last := messages[len(messages)-1].Content
	hits := 0
	for _, re := range complexityIndicators {
		if re.MatchString(last) {
			hits++
		}
	}
	return float64(hits) / float64(len(complexityIndicators)), length
}

type tier int

const (
	tierLight tier = iota
	tierMedium
	tierHeavy
)

func complexityTier(messages []Message) tier {
	score, length := Complexity(messages)
	switch {
	case score > heavyComplexity || length > heavyLength:
		return tierHeavy
	case score > mediumComplexity || length > mediumLength:
		return tierMedium
	}
	return tierLight
}

func isAnalytical(t domain.AgentType) bool {
	return t == domain.AgentPlanning || t == domain.AgentAnalytics
}

// Model catalogs, as probed by the health check.
var (
	QwenModels   = []string{"qwen-turbo", "qwen-plus", "qwen-max"}
	GeminiModels = []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"}
	OpenAIModels = []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo"}
)

// SelectQwenModel picks qwen-max for analytical work and long or intricate
// conversations, qwen-turbo for support.
func SelectQwenModel(agentType domain.AgentType, messages []Message) string {
	switch {
	case isAnalytical(agentType):
		return "qwen-max"
	case agentType == domain.AgentSupport:
		return "qwen-turbo"
	}
	switch complexityTier(messages) {
	case tierHeavy:
		return "qwen-max"
	case tierMedium:
		return "qwen-plus"
	}
	return "qwen-turbo"
}

// SelectGeminiModel picks a Gemini model.
func SelectGeminiModel(agentType domain.AgentType, messages []Message) string {
	switch {
	case isAnalytical(agentType) || complexityTier(messages) == tierHeavy:
		return "gemini-1.5-pro"
	case agentType == domain.AgentSupport:
		return "gemini-2.0-flash"
	}
	return "gemini-1.5-flash"
}

// SelectOpenAIModel picks an OpenAI model.
func SelectOpenAIModel(agentType domain.AgentType, messages []Message) string {
	t := complexityTier(messages)
	switch {
	case isAnalytical(agentType) || t == tierHeavy:
		return "gpt-4-turbo"
	case agentType == domain.AgentSupport:
		return "gpt-3.5-turbo"
	case t == tierMedium:
		return "gpt-4"
	}
	return "gpt-3.5-turbo"
}

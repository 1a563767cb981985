// Package resolver maps platform names to semantic topics and evaluates
// include/exclude channel patterns. It is pure pattern logic: precedence
// between individually-configured and category-derived channels is the
// discovery engine's job.
package resolver

import (
	"regexp"
	"strings"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

// topicKeywords is an ordered table: first match wins, so specific keywords
// ("ai-agent") must come before broader ones ("ai") that would shadow them.
var topicKeywords = []struct {
	keyword string
	topic   models.Topic
}{
	{"core", models.TopicCoreGeneral},
	{"general", models.TopicCoreGeneral},
	{"ai-agent", models.TopicAIAgents},
	{"ai_agent", models.TopicAIAgents},
	{"agent", models.TopicAIAgents},
	{"tech", models.TopicTech},
	{"dev", models.TopicTech},
	{"engineering", models.TopicTech},
	{"ai", models.TopicAI},
	{"research", models.TopicResearch},
	{"science", models.TopicScience},
	{"lab", models.TopicScience},
	{"governance", models.TopicGovernance},
	{"dao", models.TopicGovernance},
	{"proposal", models.TopicGovernance},
	{"marketing", models.TopicMarketing},
	{"growth", models.TopicMarketing},
	{"community", models.TopicCommunity},
	{"support", models.TopicSupport},
	{"help", models.TopicSupport},
	{"off-topic", models.TopicOffTopic},
	{"random", models.TopicOffTopic},
}

// ResolveSemanticTopic derives a topic from a category or channel name by
// case-insensitive substring match against the ordered keyword table.
func ResolveSemanticTopic(name string) models.Topic {
	lower := strings.ToLower(name)
	for _, entry := range topicKeywords {
		if strings.Contains(lower, entry.keyword) {
			return entry.topic
		}
	}
	return models.TopicOther
}

// ShouldIncludeChannel evaluates include/exclude patterns against a channel
// name. Exclusions are checked first and are absolute. With include patterns
// present the name must match at least one; with none, the channel is
// included by default.
func ShouldIncludeChannel(name string, include, exclude []string) bool {
	for _, p := range exclude {
		if matchPattern(name, p) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if matchPattern(name, p) {
			return true
		}
	}
	return false
}

// matchPattern treats a pattern containing '*' as a glob compiled to a
// case-insensitive regexp, anything else as a literal substring.
func matchPattern(name, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "*") {
		re, err := compileGlob(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(name)
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
}

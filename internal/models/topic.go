package models

// Topic is a normalized category label derived from container/channel names.
type Topic string

const (
	TopicCoreGeneral Topic = "core-general"
	TopicTech        Topic = "tech"
	TopicAIAgents    Topic = "ai-agents"
	TopicAI          Topic = "ai"
	TopicScience     Topic = "science"
	TopicResearch    Topic = "research"
	TopicGovernance  Topic = "governance"
	TopicMarketing   Topic = "marketing"
	TopicCommunity   Topic = "community"
	TopicSupport     Topic = "support"
	TopicOffTopic    Topic = "off-topic"
	TopicOther       Topic = "other"
)

// KnownTopics lists every topic the resolver can produce, used to validate
// externally suggested topics (config overrides, classifier output).
var KnownTopics = []Topic{
	TopicCoreGeneral,
	TopicTech,
	TopicAIAgents,
	TopicAI,
	TopicScience,
	TopicResearch,
	TopicGovernance,
	TopicMarketing,
	TopicCommunity,
	TopicSupport,
	TopicOffTopic,
	TopicOther,
}

func IsKnownTopic(t Topic) bool {
	for _, k := range KnownTopics {
		if t == k {
			return true
		}
	}
	return false
}

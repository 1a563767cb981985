package models

// Provenance records how a ChannelConfig entered the live map. Individually
// configured channels always win over category-derived ones.
type Provenance string

const (
	ProvenanceIndividual Provenance = "individual"
	ProvenanceDerived    Provenance = "derived"
)

// CategoryRule is a configured category seed. DeclaredName and SemanticTopic
// are back-filled once discovery sees the real platform name; everything else
// is immutable after load.
type CategoryRule struct {
	ID                string   `json:"id"`
	DeclaredName      string   `json:"declared_name"`
	SemanticTopic     Topic    `json:"semantic_topic"`
	PhaseTag          string   `json:"phase_tag"`
	MonitoringEnabled bool     `json:"monitoring_enabled"`
	IncludePatterns   []string `json:"include_patterns,omitempty"`
	ExcludePatterns   []string `json:"exclude_patterns,omitempty"`
}

// ChannelConfig is the resolved monitoring configuration for one channel.
// At most one exists per channel id in the live map.
type ChannelConfig struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	ParentCategoryID   string     `json:"parent_category_id,omitempty"`
	ParentCategoryName string     `json:"parent_category_name,omitempty"`
	SemanticTopic      Topic      `json:"semantic_topic"`
	PhaseTag           string     `json:"phase_tag"`
	MonitoringEnabled  bool       `json:"monitoring_enabled"`
	Provenance         Provenance `json:"provenance"`
}

// ThreadContext carries just enough thread metadata to route a message to its
// parent channel. It is never persisted.
type ThreadContext struct {
	ThreadID        string
	ParentChannelID string
	ThreadName      string
	Joined          bool
	Archived        bool
}

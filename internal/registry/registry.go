// Package registry owns the live channel/category configuration map. Writers
// (the discovery engine and live topology event handlers) clone the current
// snapshot, mutate the clone and swap it in; readers (the event router) load
// the snapshot lock-free and can run concurrently with a refresh.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

type snapshot struct {
	channels   map[string]*models.ChannelConfig
	categories map[string]*models.CategoryRule
}

// Registry holds the live configuration map with copy-on-write semantics.
type Registry struct {
	mu   sync.Mutex // serializes writers; readers never take it
	snap atomic.Pointer[snapshot]
}

func New() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{
		channels:   map[string]*models.ChannelConfig{},
		categories: map[string]*models.CategoryRule{},
	})
	return r
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		channels:   make(map[string]*models.ChannelConfig, len(s.channels)),
		categories: make(map[string]*models.CategoryRule, len(s.categories)),
	}
	for id, c := range s.channels {
		next.channels[id] = c
	}
	for id, c := range s.categories {
		next.categories[id] = c
	}
	return next
}

// Channel returns the config for a channel id, or nil when unregistered.
func (r *Registry) Channel(id string) *models.ChannelConfig {
	return r.snap.Load().channels[id]
}

// Category returns the rule for a category id, or nil.
func (r *Registry) Category(id string) *models.CategoryRule {
	return r.snap.Load().categories[id]
}

// Channels returns the registered channel configs.
func (r *Registry) Channels() []*models.ChannelConfig {
	snap := r.snap.Load()
	out := make([]*models.ChannelConfig, 0, len(snap.channels))
	for _, c := range snap.channels {
		out = append(out, c)
	}
	return out
}

// Categories returns the configured category rules.
func (r *Registry) Categories() []*models.CategoryRule {
	snap := r.snap.Load()
	out := make([]*models.CategoryRule, 0, len(snap.categories))
	for _, c := range snap.categories {
		out = append(out, c)
	}
	return out
}

// Size returns the number of registered channels.
func (r *Registry) Size() int {
	return len(r.snap.Load().channels)
}

func (r *Registry) swap(mutate func(*snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snap.Load().clone()
	mutate(next)
	r.snap.Store(next)
	metrics.ChannelsRegistered.Set(float64(len(next.channels)))
}

// RegisterChannel inserts or replaces a channel config. A derived config
// never displaces an individual one for the same id.
func (r *Registry) RegisterChannel(cfg *models.ChannelConfig) bool {
	registered := false
	r.swap(func(s *snapshot) {
		if existing, ok := s.channels[cfg.ID]; ok &&
			existing.Provenance == models.ProvenanceIndividual &&
			cfg.Provenance == models.ProvenanceDerived {
			return
		}
		s.channels[cfg.ID] = cfg
		registered = true
	})
	return registered
}

// RemoveChannel drops a channel from the live map.
func (r *Registry) RemoveChannel(id string) {
	r.swap(func(s *snapshot) {
		delete(s.channels, id)
	})
}

// SetCategories seeds the category rules at load time.
func (r *Registry) SetCategories(rules []*models.CategoryRule) {
	r.swap(func(s *snapshot) {
		s.categories = make(map[string]*models.CategoryRule, len(rules))
		for _, rule := range rules {
			s.categories[rule.ID] = rule
		}
	})
}

// UpdateCategory back-fills a rule's discovered name and topic.
func (r *Registry) UpdateCategory(rule *models.CategoryRule) {
	r.swap(func(s *snapshot) {
		s.categories[rule.ID] = rule
	})
}

// ReplaceTopology installs the result of a full discovery refresh in one
// swap: the derived portion is replaced wholesale, individual entries are
// replaced by their refreshed versions (or retained verbatim when the
// refresh has nothing newer).
func (r *Registry) ReplaceTopology(channels []*models.ChannelConfig) {
	r.swap(func(s *snapshot) {
		next := make(map[string]*models.ChannelConfig, len(channels))
		// retain existing individual entries first
		for id, c := range s.channels {
			if c.Provenance == models.ProvenanceIndividual {
				next[id] = c
			}
		}
		for _, c := range channels {
			if existing, ok := next[c.ID]; ok &&
				existing.Provenance == models.ProvenanceIndividual &&
				c.Provenance == models.ProvenanceDerived {
				continue
			}
			next[c.ID] = c
		}
		s.channels = next
	})
}

// Package discovery keeps the live channel configuration map consistent with
// the platform's actual category/channel/thread topology. A full refresh runs
// at startup and on a periodic ticker; live topology events are applied
// incrementally in between. Every platform call goes through the throttle
// engine.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/classifier"
	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
	"github.com/caelusway/bio-sync-bot-sub000/internal/registry"
	"github.com/caelusway/bio-sync-bot-sub000/internal/resolver"
	"github.com/caelusway/bio-sync-bot-sub000/internal/throttle"
)

// Config tunes the discovery engine.
type Config struct {
	RefreshInterval   time.Duration
	ArchivedPageLimit int
}

// PinnedChannel is an individually configured channel seed. It always wins
// over anything a category rule would derive for the same id.
type PinnedChannel struct {
	ID                string
	SemanticTopic     models.Topic
	PhaseTag          string
	MonitoringEnabled bool
}

// Engine walks the platform topology and maintains the registry.
type Engine struct {
	cfg      Config
	gateway  platform.Gateway
	engine   *throttle.Engine
	registry *registry.Registry
	pinned   []PinnedChannel
	topics   classifier.Classifier // optional, may be nil
	logger   *zap.Logger
}

func New(cfg Config, gateway platform.Gateway, eng *throttle.Engine, reg *registry.Registry, pinned []PinnedChannel, topics classifier.Classifier, logger *zap.Logger) *Engine {
	if cfg.ArchivedPageLimit <= 0 {
		cfg.ArchivedPageLimit = 25
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Minute
	}
	return &Engine{
		cfg:      cfg,
		gateway:  gateway,
		engine:   eng,
		registry: reg,
		pinned:   pinned,
		topics:   topics,
		logger:   logger,
	}
}

// joinTally counts per-channel thread outcomes for one refresh cycle.
type joinTally struct {
	joined   int
	archived int
	failed   int
}

// Run performs an initial refresh and then re-syncs on the configured
// interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Refresh(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Refresh(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				e.logger.Error("Topology refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh rebuilds the derived portion of the live map from the platform
// topology. Individually pinned entries are retained (with refreshed display
// names); errors are isolated per category/channel.
func (e *Engine) Refresh(ctx context.Context) error {
	cycle := uuid.New().String()[:8]
	start := time.Now()
	e.logger.Info("Starting topology refresh", zap.String("cycle", cycle))

	var fresh []*models.ChannelConfig

	for _, pin := range e.pinned {
		cfg, err := e.discoverPinned(ctx, pin)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			e.logger.Warn("Skipping pinned channel",
				zap.String("cycle", cycle),
				zap.String("channel_id", pin.ID),
				zap.Error(err))
			continue
		}
		fresh = append(fresh, cfg)
	}

	for _, rule := range e.registry.Categories() {
		derived, err := e.discoverCategory(ctx, cycle, rule, fresh)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			e.logger.Warn("Skipping category",
				zap.String("cycle", cycle),
				zap.String("category_id", rule.ID),
				zap.Error(err))
			continue
		}
		fresh = append(fresh, derived...)
	}

	e.registry.ReplaceTopology(fresh)

	for _, cfg := range e.registry.Channels() {
		if !cfg.MonitoringEnabled {
			continue
		}
		tally := e.joinChannelThreads(ctx, cfg.ID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Info("Thread sweep complete",
			zap.String("cycle", cycle),
			zap.String("channel_id", cfg.ID),
			zap.String("channel_name", cfg.Name),
			zap.Int("joined", tally.joined),
			zap.Int("archived_skipped", tally.archived),
			zap.Int("join_failed", tally.failed))
	}

	e.logger.Info("Topology refresh complete",
		zap.String("cycle", cycle),
		zap.Int("channels", e.registry.Size()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// discoverPinned fetches an individually configured channel and builds its
// config. Absent or wrong-typed channels are reported as errors for the
// caller to log and skip.
func (e *Engine) discoverPinned(ctx context.Context, pin PinnedChannel) (*models.ChannelConfig, error) {
	node, err := throttle.Do(ctx, e.engine, "fetch_channel", func(ctx context.Context) (platform.Node, error) {
		return e.gateway.FetchChannel(ctx, pin.ID)
	})
	if err != nil {
		return nil, err
	}

	ch, ok := node.(platform.Channel)
	if !ok {
		return nil, &throttle.NotFoundError{ID: pin.ID}
	}

	topic := pin.SemanticTopic
	if topic == "" {
		topic = e.resolveTopic(ctx, ch.Name)
	}
	return &models.ChannelConfig{
		ID:                ch.ID,
		Name:              ch.Name,
		ParentCategoryID:  ch.ParentID,
		SemanticTopic:     topic,
		PhaseTag:          pin.PhaseTag,
		MonitoringEnabled: pin.MonitoringEnabled,
		Provenance:        models.ProvenanceIndividual,
	}, nil
}

// discoverCategory fetches a category container, back-fills the rule's
// discovered name/topic, and derives configs for its included children.
// Children already claimed by a pinned entry keep that entry.
func (e *Engine) discoverCategory(ctx context.Context, cycle string, rule *models.CategoryRule, already []*models.ChannelConfig) ([]*models.ChannelConfig, error) {
	node, err := throttle.Do(ctx, e.engine, "fetch_category", func(ctx context.Context) (platform.Node, error) {
		return e.gateway.FetchChannel(ctx, rule.ID)
	})
	if err != nil {
		return nil, err
	}

	cat, ok := node.(platform.Category)
	if !ok {
		return nil, &throttle.NotFoundError{ID: rule.ID}
	}

	updated := *rule
	updated.DeclaredName = cat.Name
	if updated.SemanticTopic == "" {
		updated.SemanticTopic = resolver.ResolveSemanticTopic(cat.Name)
	}
	e.registry.UpdateCategory(&updated)

	children, err := throttle.Do(ctx, e.engine, "fetch_category_channels", func(ctx context.Context) ([]platform.Channel, error) {
		return e.gateway.ChannelsOf(ctx, rule.ID)
	})
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]bool, len(already))
	for _, c := range already {
		claimed[c.ID] = true
	}

	var derived []*models.ChannelConfig
	for _, ch := range children {
		if claimed[ch.ID] {
			continue
		}
		if !resolver.ShouldIncludeChannel(ch.Name, updated.IncludePatterns, updated.ExcludePatterns) {
			continue
		}
		topic := updated.SemanticTopic
		if topic == "" || topic == models.TopicOther {
			topic = e.resolveTopic(ctx, ch.Name)
		}
		derived = append(derived, &models.ChannelConfig{
			ID:                 ch.ID,
			Name:               ch.Name,
			ParentCategoryID:   rule.ID,
			ParentCategoryName: cat.Name,
			SemanticTopic:      topic,
			PhaseTag:           updated.PhaseTag,
			MonitoringEnabled:  updated.MonitoringEnabled,
			Provenance:         models.ProvenanceDerived,
		})
		e.logger.Info("Discovered channel",
			zap.String("cycle", cycle),
			zap.String("channel_id", ch.ID),
			zap.String("channel_name", ch.Name),
			zap.String("category", cat.Name),
			zap.String("topic", string(topic)))
	}
	return derived, nil
}

// joinChannelThreads enumerates active threads plus a bounded page of
// archived ones and joins whatever is joinable. Threads are never filtered by
// include/exclude patterns: once a channel is monitored, all of its threads
// are eligible. Failed joins are retried opportunistically on the next cycle.
func (e *Engine) joinChannelThreads(ctx context.Context, channelID string) joinTally {
	var tally joinTally

	active, err := throttle.Do(ctx, e.engine, "fetch_active_threads", func(ctx context.Context) ([]platform.Thread, error) {
		return e.gateway.ActiveThreads(ctx, channelID)
	})
	if err != nil {
		e.logger.Warn("Failed to list active threads",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}

	archived, err := throttle.Do(ctx, e.engine, "fetch_archived_threads", func(ctx context.Context) ([]platform.Thread, error) {
		return e.gateway.ArchivedThreads(ctx, channelID, e.cfg.ArchivedPageLimit)
	})
	if err != nil {
		e.logger.Warn("Failed to list archived threads",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}

	var joinable []platform.Thread
	for _, th := range append(active, archived...) {
		if th.Archived {
			tally.archived++
			continue
		}
		if th.Joined {
			continue
		}
		joinable = append(joinable, th)
	}

	results := throttle.ProcessBatch(ctx, e.engine, joinable, "join_thread", func(ctx context.Context, th platform.Thread) error {
		return e.gateway.JoinThread(ctx, th.ID)
	})
	for _, res := range results {
		if res.Err != nil {
			tally.failed++
			metrics.ThreadJoinFailures.Inc()
			e.logger.Error("Failed to join thread",
				zap.String("channel_id", channelID),
				zap.String("thread_id", res.Item.ID),
				zap.String("thread_name", res.Item.Name),
				zap.Error(res.Err))
			continue
		}
		tally.joined++
		metrics.ThreadsJoined.Inc()
	}
	return tally
}

// resolveTopic resolves a channel name, consulting the optional classifier
// only when the keyword table gives up.
func (e *Engine) resolveTopic(ctx context.Context, name string) models.Topic {
	topic := resolver.ResolveSemanticTopic(name)
	if topic != models.TopicOther || e.topics == nil {
		return topic
	}
	suggested, err := e.topics.SuggestTopic(ctx, name)
	if err != nil {
		e.logger.Debug("Topic suggestion unavailable",
			zap.String("channel_name", name),
			zap.Error(err))
		return topic
	}
	return suggested
}

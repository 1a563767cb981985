package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
	"github.com/caelusway/bio-sync-bot-sub000/internal/resolver"
)

// HandleChannelCreate registers a channel created under a monitored category,
// if it passes the category's include/exclude patterns.
func (e *Engine) HandleChannelCreate(ctx context.Context, ch platform.Channel) {
	rule := e.registry.Category(ch.ParentID)
	if rule == nil {
		return
	}
	if !resolver.ShouldIncludeChannel(ch.Name, rule.IncludePatterns, rule.ExcludePatterns) {
		e.logger.Info("New channel excluded by patterns",
			zap.String("channel_id", ch.ID),
			zap.String("channel_name", ch.Name))
		return
	}

	topic := rule.SemanticTopic
	if topic == "" || topic == models.TopicOther {
		topic = e.resolveTopic(ctx, ch.Name)
	}
	registered := e.registry.RegisterChannel(&models.ChannelConfig{
		ID:                 ch.ID,
		Name:               ch.Name,
		ParentCategoryID:   rule.ID,
		ParentCategoryName: rule.DeclaredName,
		SemanticTopic:      topic,
		PhaseTag:           rule.PhaseTag,
		MonitoringEnabled:  rule.MonitoringEnabled,
		Provenance:         models.ProvenanceDerived,
	})
	if registered {
		e.logger.Info("Registered new channel",
			zap.String("channel_id", ch.ID),
			zap.String("channel_name", ch.Name),
			zap.String("topic", string(topic)))
	}
}

// HandleChannelDelete drops a channel from the live map.
func (e *Engine) HandleChannelDelete(ch platform.Channel) {
	if e.registry.Channel(ch.ID) == nil {
		return
	}
	e.registry.RemoveChannel(ch.ID)
	e.logger.Info("Removed deleted channel",
		zap.String("channel_id", ch.ID),
		zap.String("channel_name", ch.Name))
}

// HandleThreadCreate joins a thread created under a monitored channel.
// Threads are never pattern-filtered: any thread under a monitored channel
// is joined regardless of its name.
func (e *Engine) HandleThreadCreate(ctx context.Context, th platform.Thread) {
	cfg := e.registry.Channel(th.ParentID)
	if cfg == nil || !cfg.MonitoringEnabled {
		return
	}
	if th.Joined || th.Archived {
		return
	}

	err := e.engine.ExecuteWithRetry(ctx, "join_thread", func(ctx context.Context) error {
		return e.gateway.JoinThread(ctx, th.ID)
	})
	if err != nil {
		metrics.ThreadJoinFailures.Inc()
		e.logger.Error("Failed to join new thread",
			zap.String("thread_id", th.ID),
			zap.String("thread_name", th.Name),
			zap.String("channel_id", th.ParentID),
			zap.Error(err))
		return
	}
	metrics.ThreadsJoined.Inc()
	e.logger.Info("Joined new thread",
		zap.String("thread_id", th.ID),
		zap.String("thread_name", th.Name),
		zap.String("channel_id", th.ParentID))
}

// HandleThreadUpdate logs archive/unarchive/rename transitions. No map
// mutation is needed: routing keys off the parent channel, not the thread.
func (e *Engine) HandleThreadUpdate(th platform.Thread) {
	if e.registry.Channel(th.ParentID) == nil {
		return
	}
	e.logger.Info("Thread state changed",
		zap.String("thread_id", th.ID),
		zap.String("thread_name", th.Name),
		zap.String("channel_id", th.ParentID),
		zap.Bool("archived", th.Archived))
}

// HandleThreadDelete logs the removal; nothing is registered per-thread.
func (e *Engine) HandleThreadDelete(th platform.Thread) {
	if e.registry.Channel(th.ParentID) == nil {
		return
	}
	e.logger.Info("Thread deleted",
		zap.String("thread_id", th.ID),
		zap.String("channel_id", th.ParentID))
}

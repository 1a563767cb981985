package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
	"github.com/caelusway/bio-sync-bot-sub000/internal/registry"
	"github.com/caelusway/bio-sync-bot-sub000/internal/throttle"
)

// TopologyHandler receives live topology transitions; the discovery engine
// implements it.
type TopologyHandler interface {
	HandleChannelCreate(ctx context.Context, ch platform.Channel)
	HandleChannelDelete(ch platform.Channel)
	HandleThreadCreate(ctx context.Context, th platform.Thread)
	HandleThreadUpdate(th platform.Thread)
	HandleThreadDelete(th platform.Thread)
}

// Router resolves inbound events against the live configuration map and
// forwards monitored message traffic to the pipeline. It only reads the
// registry: all mutation goes through the topology handler.
type Router struct {
	registry *registry.Registry
	gateway  platform.Gateway
	engine   *throttle.Engine
	pipeline *Pipeline
	topology TopologyHandler
	logger   *zap.Logger
}

func NewRouter(reg *registry.Registry, gateway platform.Gateway, eng *throttle.Engine, pipeline *Pipeline, topology TopologyHandler, logger *zap.Logger) *Router {
	return &Router{
		registry: reg,
		gateway:  gateway,
		engine:   eng,
		pipeline: pipeline,
		topology: topology,
		logger:   logger,
	}
}

// Handle dispatches one platform event. Errors are isolated per event: a bad
// message never affects concurrently processing ones.
func (r *Router) Handle(ctx context.Context, ev platform.Event) {
	switch ev.Kind {
	case platform.EventMessageCreate:
		r.handleMessage(ctx, ev, false)
	case platform.EventMessageUpdate:
		r.handleMessage(ctx, ev, true)
	case platform.EventMessageDelete:
		r.handleMessageDelete(ctx, ev)
	case platform.EventChannelCreate:
		if ev.Channel != nil {
			r.topology.HandleChannelCreate(ctx, *ev.Channel)
		}
	case platform.EventChannelDelete:
		if ev.Channel != nil {
			r.topology.HandleChannelDelete(*ev.Channel)
		}
	case platform.EventThreadCreate:
		if ev.Thread != nil {
			r.topology.HandleThreadCreate(ctx, *ev.Thread)
		}
	case platform.EventThreadUpdate:
		if ev.Thread != nil {
			r.topology.HandleThreadUpdate(*ev.Thread)
		}
	case platform.EventThreadDelete:
		if ev.Thread != nil {
			r.topology.HandleThreadDelete(*ev.Thread)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, ev platform.Event, isUpdate bool) {
	msg := ev.Message
	if msg == nil {
		return
	}
	if msg.AuthorIsBot {
		metrics.MessagesDropped.WithLabelValues(metrics.DropBotAuthor).Inc()
		return
	}

	cfg, thread, ok := r.resolve(ctx, ev)
	if !ok {
		return
	}

	canonical := canonicalize(msg, cfg, thread)
	if isUpdate {
		r.pipeline.IngestUpdate(ctx, canonical)
		return
	}
	r.pipeline.IngestCreate(ctx, canonical)
}

func (r *Router) handleMessageDelete(ctx context.Context, ev platform.Event) {
	msg := ev.Message
	if msg == nil {
		return
	}
	// Deletes only need the id; unmonitored traffic has no stored record, so
	// a miss is harmless either way.
	r.pipeline.IngestDelete(ctx, msg.ID)
}

// resolve maps the event's channel to a monitored ChannelConfig, returning
// the thread context for thread traffic. Unmonitored traffic returns !ok
// silently; an unresolvable thread parent drops the event with a log line.
func (r *Router) resolve(ctx context.Context, ev platform.Event) (*models.ChannelConfig, *models.ThreadContext, bool) {
	msg := ev.Message
	thread := ev.Thread

	// A known plain channel routes directly.
	if thread == nil && ev.ChannelKnown {
		cfg := r.registry.Channel(msg.ChannelID)
		if cfg == nil || !cfg.MonitoringEnabled {
			metrics.MessagesDropped.WithLabelValues(metrics.DropUnmonitored).Inc()
			return nil, nil, false
		}
		return cfg, nil, true
	}

	// Channel metadata missing (known platform race): one throttled fetch.
	if thread == nil {
		node, err := throttle.Do(ctx, r.engine, "resolve_message_channel", func(ctx context.Context) (platform.Node, error) {
			return r.gateway.FetchChannel(ctx, msg.ChannelID)
		})
		if err != nil {
			metrics.MessagesDropped.WithLabelValues(metrics.DropUnresolvedParent).Inc()
			r.logger.Error("Dropping message with unresolvable channel",
				zap.String("message_id", msg.ID),
				zap.String("channel_id", msg.ChannelID),
				zap.Error(err))
			return nil, nil, false
		}
		switch n := node.(type) {
		case platform.Thread:
			thread = &n
		case platform.Channel:
			cfg := r.registry.Channel(n.ID)
			if cfg == nil || !cfg.MonitoringEnabled {
				metrics.MessagesDropped.WithLabelValues(metrics.DropUnmonitored).Inc()
				return nil, nil, false
			}
			return cfg, nil, true
		default:
			metrics.MessagesDropped.WithLabelValues(metrics.DropUnresolvedParent).Inc()
			r.logger.Error("Dropping message addressed to a non-channel node",
				zap.String("message_id", msg.ID),
				zap.String("channel_id", msg.ChannelID))
			return nil, nil, false
		}
	}

	if thread.ParentID == "" {
		metrics.MessagesDropped.WithLabelValues(metrics.DropUnresolvedParent).Inc()
		r.logger.Error("Dropping thread message with no parent channel",
			zap.String("message_id", msg.ID),
			zap.String("thread_id", thread.ID))
		return nil, nil, false
	}

	// Thread traffic routes by parent channel only; thread names are never
	// pattern-checked.
	cfg := r.registry.Channel(thread.ParentID)
	if cfg == nil || !cfg.MonitoringEnabled {
		metrics.MessagesDropped.WithLabelValues(metrics.DropUnmonitored).Inc()
		return nil, nil, false
	}
	return cfg, &models.ThreadContext{
		ThreadID:        thread.ID,
		ParentChannelID: thread.ParentID,
		ThreadName:      thread.Name,
		Joined:          thread.Joined,
		Archived:        thread.Archived,
	}, true
}

// canonicalize builds the durable record. Thread messages are attributed to
// the parent channel: ChannelID/ChannelName refer to the parent, with the
// thread identity carried alongside.
func canonicalize(msg *platform.Message, cfg *models.ChannelConfig, thread *models.ThreadContext) *models.CanonicalMessage {
	attachments := make([]models.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, models.Attachment{
			ID:          a.ID,
			FileName:    a.FileName,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	if len(attachments) == 0 {
		attachments = nil
	}

	canonical := &models.CanonicalMessage{
		ID:              msg.ID,
		ChannelID:       cfg.ID,
		ChannelName:     cfg.Name,
		AuthorID:        msg.AuthorID,
		AuthorName:      msg.AuthorName,
		Content:         msg.Content,
		Attachments:     attachments,
		Timestamp:       msg.Timestamp,
		EditedTimestamp: msg.EditedTimestamp,
		SemanticTopic:   cfg.SemanticTopic,
		PhaseTag:        cfg.PhaseTag,
	}
	if cfg.ParentCategoryID != "" {
		canonical.Metadata = map[string]string{
			"category_id":   cfg.ParentCategoryID,
			"category_name": cfg.ParentCategoryName,
		}
	}
	if thread != nil {
		canonical.IsThread = true
		canonical.ThreadID = thread.ThreadID
		canonical.ThreadName = thread.ThreadName
		canonical.ParentChannelID = thread.ParentChannelID
		// cfg is the parent's config: its name is the parent channel name
		canonical.ParentChannelName = cfg.Name
	}
	return canonical
}

package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
	"github.com/caelusway/bio-sync-bot-sub000/internal/storage"
)

// Pipeline persists canonical messages and maintains channel/user aggregates.
// Persistence is idempotent on the message id; aggregates only move on new
// ingestions, never on edits or duplicate deliveries.
type Pipeline struct {
	storage storage.Storage
	logger  *zap.Logger
}

func NewPipeline(store storage.Storage, logger *zap.Logger) *Pipeline {
	return &Pipeline{storage: store, logger: logger}
}

// IngestCreate stores a new message and updates aggregates. A duplicate
// delivery of the same id takes the update path inside SaveMessage and still
// counts as a successful ingestion, but it does not bump the aggregates a
// second time.
func (p *Pipeline) IngestCreate(ctx context.Context, msg *models.CanonicalMessage) {
	outcome, err := p.storage.SaveMessage(ctx, msg)
	if err != nil {
		p.logger.Error("Failed to save message",
			zap.String("message_id", msg.ID),
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err))
		return
	}

	if outcome == storage.SaveUpdatedDuplicate {
		metrics.DuplicateDeliveries.Inc()
		p.logger.Debug("Duplicate delivery absorbed",
			zap.String("message_id", msg.ID),
			zap.String("channel_id", msg.ChannelID))
		return
	}

	metrics.MessagesIngested.WithLabelValues(string(msg.SemanticTopic)).Inc()

	// The gateway owns the increment: the worker pool ingests into the same
	// channel concurrently, so a get/compute/upsert here would lose updates.
	if err := p.storage.RecordChannelMessage(ctx, msg.ChannelID, msg.Timestamp); err != nil {
		p.logger.Error("Failed to update channel stats",
			zap.String("message_id", msg.ID),
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err))
	}
	if err := p.storage.UpsertUserActivity(ctx, msg.AuthorID, msg.ChannelID, msg.Timestamp); err != nil {
		p.logger.Error("Failed to update user activity",
			zap.String("message_id", msg.ID),
			zap.String("user_id", msg.AuthorID),
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err))
	}
}

// IngestUpdate applies an edit to an existing record. Counters are never
// re-incremented; an edit arriving before its create (network reordering) is
// absorbed by saving the edited payload as the initial record.
func (p *Pipeline) IngestUpdate(ctx context.Context, msg *models.CanonicalMessage) {
	err := p.storage.UpdateMessage(ctx, msg.ID, models.MessageUpdate{
		Content:         msg.Content,
		Attachments:     msg.Attachments,
		EditedTimestamp: msg.EditedTimestamp,
		Metadata:        msg.Metadata,
	})
	if err == nil {
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		// update-before-create race: persist it now, counting it as the
		// first ingestion of this id
		p.IngestCreate(ctx, msg)
		return
	}
	p.logger.Error("Failed to update message",
		zap.String("message_id", msg.ID),
		zap.String("channel_id", msg.ChannelID),
		zap.Error(err))
}

// IngestDelete removes a stored record. Unknown ids are a no-op.
func (p *Pipeline) IngestDelete(ctx context.Context, id string) {
	if err := p.storage.DeleteMessage(ctx, id); err != nil {
		p.logger.Error("Failed to delete message",
			zap.String("message_id", id),
			zap.Error(err))
	}
}

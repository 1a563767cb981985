package storage

import (
	"context"
	"errors"
	"time"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

// SaveOutcome distinguishes a first-time insert from the idempotent update
// taken when the same message id was already stored.
type SaveOutcome int

const (
	SaveInserted SaveOutcome = iota
	SaveUpdatedDuplicate
)

// ErrNotFound is returned when an update targets an unknown id.
var ErrNotFound = errors.New("record not found")

// Storage is the persistence gateway for the ingestion pipeline. All methods
// are safe for concurrent use across distinct ids. SaveMessage never treats a
// duplicate id as a failure: it reports SaveUpdatedDuplicate so the caller
// still proceeds to update aggregates.
type Storage interface {
	// SaveMessage stores msg idempotently: the first delivery inserts, any
	// later delivery of the same id updates mutable fields while the stored
	// creation timestamp stays fixed at first-seen.
	SaveMessage(ctx context.Context, msg *models.CanonicalMessage) (SaveOutcome, error)
	// UpdateMessage applies an edit to an existing record.
	UpdateMessage(ctx context.Context, id string, upd models.MessageUpdate) error
	// DeleteMessage removes a record; deleting an unknown id is not an error.
	DeleteMessage(ctx context.Context, id string) error

	GetChannelStats(ctx context.Context, channelID string) (*models.ChannelStats, error)
	// RecordChannelMessage counts one ingested message against the channel's
	// aggregates in a single atomic operation: total_messages always
	// increments, the day/week counters increment or reset to one depending
	// on whether at crosses the boundary relative to the row's last recorded
	// message, and last_message_at only moves forward. Concurrent calls for
	// the same channel must never lose an increment.
	RecordChannelMessage(ctx context.Context, channelID string, at time.Time) error
	// UpsertUserActivity creates the (userID, channelID) row on first sight
	// with a count of one, and atomically increments the count and bumps
	// last_message_at on every later sight. first_message_at never changes.
	UpsertUserActivity(ctx context.Context, userID, channelID string, at time.Time) error

	Close() error
}

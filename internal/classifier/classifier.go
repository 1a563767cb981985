// Package classifier suggests a semantic topic for channel names the keyword
// resolver could not place. It is an optional enrichment: discovery consults
// it only for names that resolved to "other", and any failure falls back to
// that default.
package classifier

import (
	"context"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

type Classifier interface {
	// SuggestTopic returns a known topic for the given channel name, or an
	// error when no confident suggestion exists.
	SuggestTopic(ctx context.Context, channelName string) (models.Topic, error)
}

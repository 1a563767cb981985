package storage

import (
	"context"
	"sync"
	"time"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

// MemoryStorage is a map-backed Storage used by tests and the use_in_memory
// development mode. It mirrors the Postgres implementation's semantics,
// including the idempotent save contract.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string]*storedMessage
	stats    map[string]*models.ChannelStats
	activity map[activityKey]*models.UserActivity
}

type storedMessage struct {
	msg       models.CanonicalMessage
	createdAt time.Time
}

type activityKey struct {
	userID    string
	channelID string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*storedMessage),
		stats:    make(map[string]*models.ChannelStats),
		activity: make(map[activityKey]*models.UserActivity),
	}
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, msg *models.CanonicalMessage) (SaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.messages[msg.ID]; ok {
		// duplicate delivery: overwrite mutable fields, keep first-seen times
		existing.msg.Content = msg.Content
		existing.msg.Attachments = msg.Attachments
		existing.msg.EditedTimestamp = msg.EditedTimestamp
		existing.msg.Metadata = msg.Metadata
		return SaveUpdatedDuplicate, nil
	}

	stored := *msg
	s.messages[msg.ID] = &storedMessage{msg: stored, createdAt: time.Now()}
	return SaveInserted, nil
}

func (s *MemoryStorage) UpdateMessage(ctx context.Context, id string, upd models.MessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	existing.msg.Content = upd.Content
	existing.msg.Attachments = upd.Attachments
	existing.msg.EditedTimestamp = upd.EditedTimestamp
	existing.msg.Metadata = upd.Metadata
	return nil
}

func (s *MemoryStorage) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, id)
	return nil
}

func (s *MemoryStorage) GetChannelStats(ctx context.Context, channelID string) (*models.ChannelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stats, ok := s.stats[channelID]; ok {
		copied := *stats
		return &copied, nil
	}
	return nil, nil
}

// RecordChannelMessage performs the read-modify-write under the store's write
// lock so concurrent ingestions into one channel never lose an increment.
func (s *MemoryStorage) RecordChannelMessage(ctx context.Context, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stats[channelID]
	if !ok {
		s.stats[channelID] = &models.ChannelStats{
			ChannelID:        channelID,
			TotalMessages:    1,
			MessagesToday:    1,
			MessagesThisWeek: 1,
			LastMessageAt:    at,
		}
		return nil
	}

	existing.TotalMessages++
	if existing.SameDay(at) {
		existing.MessagesToday++
	} else {
		existing.MessagesToday = 1
	}
	if existing.SameWeek(at) {
		existing.MessagesThisWeek++
	} else {
		existing.MessagesThisWeek = 1
	}
	if at.After(existing.LastMessageAt) {
		existing.LastMessageAt = at
	}
	return nil
}

func (s *MemoryStorage) UpsertUserActivity(ctx context.Context, userID, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activityKey{userID: userID, channelID: channelID}
	if existing, ok := s.activity[key]; ok {
		existing.MessageCount++
		if at.After(existing.LastMessageAt) {
			existing.LastMessageAt = at
		}
		return nil
	}
	s.activity[key] = &models.UserActivity{
		UserID:         userID,
		ChannelID:      channelID,
		MessageCount:   1,
		FirstMessageAt: at,
		LastMessageAt:  at,
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// GetMessage returns a stored message by id; test helper.
func (s *MemoryStorage) GetMessage(id string) (*models.CanonicalMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stored, ok := s.messages[id]; ok {
		copied := stored.msg
		return &copied, true
	}
	return nil, false
}

// GetUserActivity returns the activity row for (userID, channelID); test helper.
func (s *MemoryStorage) GetUserActivity(userID, channelID string) (*models.UserActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.activity[activityKey{userID: userID, channelID: channelID}]; ok {
		copied := *a
		return &copied, true
	}
	return nil, false
}

// MessageCount reports the number of stored messages; test helper.
func (s *MemoryStorage) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

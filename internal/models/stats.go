package models

import "time"

// ChannelStats aggregates traffic per channel. Thread traffic is counted
// against the parent channel. TotalMessages never decreases; the day/week
// counters reset when LastMessageAt crosses a boundary relative to the
// message being recorded.
type ChannelStats struct {
	ChannelID        string    `json:"channel_id"`
	TotalMessages    int64     `json:"total_messages"`
	MessagesToday    int64     `json:"messages_today"`
	MessagesThisWeek int64     `json:"messages_this_week"`
	LastMessageAt    time.Time `json:"last_message_at"`
}

// SameDay reports whether the stats row's last message and t fall on the
// same UTC calendar day.
func (s *ChannelStats) SameDay(t time.Time) bool {
	a, b := s.LastMessageAt.UTC(), t.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// SameWeek reports whether the stats row's last message and t fall in the
// same ISO week.
func (s *ChannelStats) SameWeek(t time.Time) bool {
	ay, aw := s.LastMessageAt.UTC().ISOWeek()
	by, bw := t.UTC().ISOWeek()
	return ay == by && aw == bw
}

// UserActivity tracks per-user traffic in one channel, unique per
// (UserID, ChannelID). MessageCount increments only on new ingestions,
// never on edits or duplicate deliveries.
type UserActivity struct {
	UserID         string    `json:"user_id"`
	ChannelID      string    `json:"channel_id"`
	MessageCount   int64     `json:"message_count"`
	FirstMessageAt time.Time `json:"first_message_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

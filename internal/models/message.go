package models

import "time"

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// CanonicalMessage is the durable form of an ingested platform message.
// ID is the platform-supplied message id and acts as the idempotency key.
// For thread traffic ChannelID/ChannelName always refer to the parent
// channel; the thread identity is carried alongside.
type CanonicalMessage struct {
	ID                string            `json:"id"`
	ChannelID         string            `json:"channel_id"`
	ChannelName       string            `json:"channel_name"`
	IsThread          bool              `json:"is_thread"`
	ThreadID          string            `json:"thread_id,omitempty"`
	ThreadName        string            `json:"thread_name,omitempty"`
	ParentChannelID   string            `json:"parent_channel_id,omitempty"`
	ParentChannelName string            `json:"parent_channel_name,omitempty"`
	AuthorID          string            `json:"author_id"`
	AuthorName        string            `json:"author_name,omitempty"`
	Content           string            `json:"content"`
	Attachments       []Attachment      `json:"attachments,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	EditedTimestamp   *time.Time        `json:"edited_timestamp,omitempty"`
	SemanticTopic     Topic             `json:"semantic_topic"`
	PhaseTag          string            `json:"phase_tag"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// MessageUpdate holds the mutable fields applied on edit events. The stored
// creation timestamp is never touched by an update.
type MessageUpdate struct {
	Content         string            `json:"content"`
	Attachments     []Attachment      `json:"attachments,omitempty"`
	EditedTimestamp *time.Time        `json:"edited_timestamp,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

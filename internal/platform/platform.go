// Package platform defines the gateway surface the bot consumes from the
// chat platform: topology fetches, thread joins, and the inbound event
// stream. Implementations live in their own packages (internal/discord);
// tests substitute fakes.
package platform

import (
	"context"
	"time"
)

// Node is a discovered topology node: a Category, a Channel (text or forum)
// or a Thread. Callers dispatch with a type switch.
type Node interface {
	NodeID() string
	NodeName() string
}

// Category groups channels on the platform.
type Category struct {
	ID   string
	Name string
}

func (c Category) NodeID() string   { return c.ID }
func (c Category) NodeName() string { return c.Name }

// Channel is a persistent conversation surface. Forum channels host posts
// that behave like threads.
type Channel struct {
	ID       string
	Name     string
	ParentID string
	Forum    bool
}

func (c Channel) NodeID() string   { return c.ID }
func (c Channel) NodeName() string { return c.Name }

// Thread is an ephemeral conversation anchored to a parent channel. Messages
// in it are only delivered once the bot has joined.
type Thread struct {
	ID       string
	Name     string
	ParentID string
	Archived bool
	Joined   bool
}

func (t Thread) NodeID() string   { return t.ID }
func (t Thread) NodeName() string { return t.Name }

// Gateway is the outbound platform surface. Every call a caller makes MUST
// go through the throttle engine; implementations only translate transport
// errors into the throttle taxonomy.
type Gateway interface {
	// FetchChannel returns the node for id, whatever its kind.
	FetchChannel(ctx context.Context, id string) (Node, error)
	// ChannelsOf lists the text/forum children of a category.
	ChannelsOf(ctx context.Context, categoryID string) ([]Channel, error)
	// ActiveThreads lists the non-archived threads of a channel.
	ActiveThreads(ctx context.Context, channelID string) ([]Thread, error)
	// ArchivedThreads lists up to limit archived threads of a channel.
	ArchivedThreads(ctx context.Context, channelID string, limit int) ([]Thread, error)
	// JoinThread subscribes the bot to a thread's messages.
	JoinThread(ctx context.Context, threadID string) error
}

// Message is a raw inbound platform message, before canonicalization.
type Message struct {
	ID              string
	ChannelID       string
	AuthorID        string
	AuthorName      string
	AuthorIsBot     bool
	Content         string
	Attachments     []MessageAttachment
	Timestamp       time.Time
	EditedTimestamp *time.Time
}

type MessageAttachment struct {
	ID          string
	FileName    string
	URL         string
	ContentType string
	Size        int
}

// EventKind discriminates inbound events.
type EventKind int

const (
	EventMessageCreate EventKind = iota
	EventMessageUpdate
	EventMessageDelete
	EventChannelCreate
	EventChannelDelete
	EventThreadCreate
	EventThreadUpdate
	EventThreadDelete
)

func (k EventKind) String() string {
	switch k {
	case EventMessageCreate:
		return "message_create"
	case EventMessageUpdate:
		return "message_update"
	case EventMessageDelete:
		return "message_delete"
	case EventChannelCreate:
		return "channel_create"
	case EventChannelDelete:
		return "channel_delete"
	case EventThreadCreate:
		return "thread_create"
	case EventThreadUpdate:
		return "thread_update"
	case EventThreadDelete:
		return "thread_delete"
	}
	return "unknown"
}

// Event is one inbound platform event. Exactly one payload field is set for
// a given kind: Message for message events (with Thread carrying channel
// metadata when the connector could resolve it), Channel for channel events,
// Thread for thread events.
type Event struct {
	Kind    EventKind
	Message *Message
	Channel *Channel
	// Thread is the thread metadata for thread events, and for message
	// events that arrived in a thread (nil when the connector's cache
	// missed; the router recovers it with one throttled fetch).
	Thread *Thread
	// ChannelKnown is true for message events whose channel the connector
	// positively identified as a plain (non-thread) channel.
	ChannelKnown bool
}

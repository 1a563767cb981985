package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
)

// Subscribe registers gateway event handlers that convert discordgo payloads
// into platform events and hand them to enqueue. Handlers never block: the
// dispatcher's bounded queue absorbs (or sheds) bursts.
func (g *Gateway) Subscribe(enqueue func(platform.Event) bool) {
	g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if !g.inGuild(m.GuildID) || m.Author == nil {
			return
		}
		enqueue(g.messageEvent(platform.EventMessageCreate, m.Message))
	})
	g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageUpdate) {
		if !g.inGuild(m.GuildID) || m.Author == nil {
			return
		}
		enqueue(g.messageEvent(platform.EventMessageUpdate, m.Message))
	})
	g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageDelete) {
		if !g.inGuild(m.GuildID) {
			return
		}
		enqueue(platform.Event{
			Kind:    platform.EventMessageDelete,
			Message: &platform.Message{ID: m.ID, ChannelID: m.ChannelID},
		})
	})
	g.session.AddHandler(func(s *discordgo.Session, c *discordgo.ChannelCreate) {
		if !g.inGuild(c.GuildID) {
			return
		}
		if ch, ok := toNode(c.Channel).(platform.Channel); ok {
			enqueue(platform.Event{Kind: platform.EventChannelCreate, Channel: &ch})
		}
	})
	g.session.AddHandler(func(s *discordgo.Session, c *discordgo.ChannelDelete) {
		if !g.inGuild(c.GuildID) {
			return
		}
		if ch, ok := toNode(c.Channel).(platform.Channel); ok {
			enqueue(platform.Event{Kind: platform.EventChannelDelete, Channel: &ch})
		}
	})
	g.session.AddHandler(func(s *discordgo.Session, t *discordgo.ThreadCreate) {
		if !g.inGuild(t.GuildID) {
			return
		}
		th := toThread(t.Channel)
		enqueue(platform.Event{Kind: platform.EventThreadCreate, Thread: &th})
	})
	g.session.AddHandler(func(s *discordgo.Session, t *discordgo.ThreadUpdate) {
		if !g.inGuild(t.GuildID) {
			return
		}
		th := toThread(t.Channel)
		enqueue(platform.Event{Kind: platform.EventThreadUpdate, Thread: &th})
	})
	g.session.AddHandler(func(s *discordgo.Session, t *discordgo.ThreadDelete) {
		if !g.inGuild(t.GuildID) {
			return
		}
		th := toThread(t.Channel)
		enqueue(platform.Event{Kind: platform.EventThreadDelete, Thread: &th})
	})
	g.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		g.logger.Info("Gateway ready",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)))
	})
}

func (g *Gateway) inGuild(guildID string) bool {
	return guildID == "" || g.guildID == "" || guildID == g.guildID
}

// messageEvent converts a message and annotates it with whatever channel
// metadata the session state already holds. A state miss leaves both Thread
// and ChannelKnown unset; the router recovers with one throttled fetch.
func (g *Gateway) messageEvent(kind platform.EventKind, m *discordgo.Message) platform.Event {
	msg := &platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.AuthorIsBot = m.Author.Bot
	}
	if m.EditedTimestamp != nil {
		ts := *m.EditedTimestamp
		msg.EditedTimestamp = &ts
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, platform.MessageAttachment{
			ID:          a.ID,
			FileName:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}

	ev := platform.Event{Kind: kind, Message: msg}
	if ch, err := g.session.State.Channel(m.ChannelID); err == nil {
		switch node := toNode(ch).(type) {
		case platform.Thread:
			ev.Thread = &node
		case platform.Channel:
			ev.ChannelKnown = true
		}
	}
	return ev
}

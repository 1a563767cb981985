// Package discord adapts a discordgo session to the platform gateway. It
// only translates calls and errors: throttling is the caller's job, and the
// session's own rest-retry is disabled so rate-limit signals surface to the
// throttle engine instead of being swallowed here.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
	"github.com/caelusway/bio-sync-bot-sub000/internal/throttle"
)

type Gateway struct {
	session *discordgo.Session
	guildID string
	logger  *zap.Logger
}

// New connects a session for the given guild. A failure to open the gateway
// connection is the one fatal platform error at startup.
func New(token, guildID string, logger *zap.Logger) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	// surface 429s to the throttle engine instead of retrying in the library
	session.MaxRestRetries = 0

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gateway connection: %w", err)
	}

	return &Gateway{session: session, guildID: guildID, logger: logger}, nil
}

func (g *Gateway) Close() error {
	return g.session.Close()
}

func (g *Gateway) FetchChannel(ctx context.Context, id string) (platform.Node, error) {
	ch, err := g.session.Channel(id)
	if err != nil {
		return nil, wrapErr("fetch channel "+id, err)
	}
	node := toNode(ch)
	if node == nil {
		return nil, &throttle.NotFoundError{ID: id}
	}
	return node, nil
}

func (g *Gateway) ChannelsOf(ctx context.Context, categoryID string) ([]platform.Channel, error) {
	chans, err := g.session.GuildChannels(g.guildID)
	if err != nil {
		return nil, wrapErr("list guild channels", err)
	}
	var out []platform.Channel
	for _, ch := range chans {
		if ch.ParentID != categoryID {
			continue
		}
		if c, ok := toNode(ch).(platform.Channel); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *Gateway) ActiveThreads(ctx context.Context, channelID string) ([]platform.Thread, error) {
	list, err := g.session.GuildThreadsActive(g.guildID)
	if err != nil {
		return nil, wrapErr("list active threads", err)
	}
	joined := make(map[string]bool, len(list.Members))
	for _, m := range list.Members {
		joined[m.ID] = true
	}
	var out []platform.Thread
	for _, ch := range list.Threads {
		if ch.ParentID != channelID {
			continue
		}
		th := toThread(ch)
		if joined[th.ID] {
			th.Joined = true
		}
		out = append(out, th)
	}
	return out, nil
}

func (g *Gateway) ArchivedThreads(ctx context.Context, channelID string, limit int) ([]platform.Thread, error) {
	list, err := g.session.ThreadsArchived(channelID, nil, limit)
	if err != nil {
		return nil, wrapErr("list archived threads", err)
	}
	out := make([]platform.Thread, 0, len(list.Threads))
	for _, ch := range list.Threads {
		out = append(out, toThread(ch))
	}
	return out, nil
}

func (g *Gateway) JoinThread(ctx context.Context, threadID string) error {
	return wrapErr("join thread "+threadID, g.session.ThreadJoin(threadID))
}

func toNode(ch *discordgo.Channel) platform.Node {
	switch ch.Type {
	case discordgo.ChannelTypeGuildCategory:
		return platform.Category{ID: ch.ID, Name: ch.Name}
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return platform.Channel{ID: ch.ID, Name: ch.Name, ParentID: ch.ParentID}
	case discordgo.ChannelTypeGuildForum:
		return platform.Channel{ID: ch.ID, Name: ch.Name, ParentID: ch.ParentID, Forum: true}
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return toThread(ch)
	default:
		return nil
	}
}

func toThread(ch *discordgo.Channel) platform.Thread {
	th := platform.Thread{ID: ch.ID, Name: ch.Name, ParentID: ch.ParentID}
	if ch.ThreadMetadata != nil {
		th.Archived = ch.ThreadMetadata.Archived
	}
	if ch.Member != nil {
		th.Joined = true
	}
	return th
}

// wrapErr maps discordgo failures onto the throttle taxonomy so the retry
// policy can classify them.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return &throttle.RateLimitedError{RetryAfter: rl.RetryAfter}
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch {
		case rest.Response.StatusCode == http.StatusForbidden:
			return &throttle.PermissionError{Op: op}
		case rest.Response.StatusCode == http.StatusNotFound:
			return &throttle.NotFoundError{ID: op}
		case rest.Response.StatusCode >= http.StatusInternalServerError:
			return &throttle.TransientError{Err: err}
		default:
			return err
		}
	}
	// anything below the REST layer is a network-class failure
	return &throttle.TransientError{Err: err}
}

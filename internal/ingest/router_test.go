package ingest

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
	"github.com/caelusway/bio-sync-bot-sub000/internal/registry"
	"github.com/caelusway/bio-sync-bot-sub000/internal/storage"
	"github.com/caelusway/bio-sync-bot-sub000/internal/throttle"
)

type fakeGateway struct {
	nodes   map[string]platform.Node
	fetches int
}

func (g *fakeGateway) FetchChannel(ctx context.Context, id string) (platform.Node, error) {
	g.fetches++
	if node, ok := g.nodes[id]; ok {
		return node, nil
	}
	return nil, &throttle.NotFoundError{ID: id}
}

func (g *fakeGateway) ChannelsOf(ctx context.Context, categoryID string) ([]platform.Channel, error) {
	return nil, nil
}

func (g *fakeGateway) ActiveThreads(ctx context.Context, channelID string) ([]platform.Thread, error) {
	return nil, nil
}

func (g *fakeGateway) ArchivedThreads(ctx context.Context, channelID string, limit int) ([]platform.Thread, error) {
	return nil, nil
}

func (g *fakeGateway) JoinThread(ctx context.Context, threadID string) error { return nil }

type noopTopology struct{}

func (noopTopology) HandleChannelCreate(ctx context.Context, ch platform.Channel) {}
func (noopTopology) HandleChannelDelete(ch platform.Channel)                      {}
func (noopTopology) HandleThreadCreate(ctx context.Context, th platform.Thread)   {}
func (noopTopology) HandleThreadUpdate(th platform.Thread)                        {}
func (noopTopology) HandleThreadDelete(th platform.Thread)                        {}

type routerFixture struct {
	router  *Router
	store   *storage.MemoryStorage
	gateway *fakeGateway
	reg     *registry.Registry
}

func newRouterFixture() *routerFixture {
	store := storage.NewMemoryStorage()
	reg := registry.New()
	gw := &fakeGateway{nodes: map[string]platform.Node{}}
	eng := throttle.New(throttle.Config{
		RequestsPerSecond: 1000,
		Retry:             throttle.RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond},
	}, zap.NewNop())
	pipeline := NewPipeline(store, zap.NewNop())
	return &routerFixture{
		router:  NewRouter(reg, gw, eng, pipeline, noopTopology{}, zap.NewNop()),
		store:   store,
		gateway: gw,
		reg:     reg,
	}
}

func monitored(id, name string) *models.ChannelConfig {
	return &models.ChannelConfig{
		ID:                 id,
		Name:               name,
		ParentCategoryID:   "cat-eng",
		ParentCategoryName: "engineering",
		SemanticTopic:      models.TopicTech,
		PhaseTag:           "pre_launch",
		MonitoringEnabled:  true,
		Provenance:         models.ProvenanceDerived,
	}
}

func messageEvent(kind platform.EventKind, msg *platform.Message, thread *platform.Thread, channelKnown bool) platform.Event {
	return platform.Event{Kind: kind, Message: msg, Thread: thread, ChannelKnown: channelKnown}
}

func TestChannelMessageRouted(t *testing.T) {
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch1", "dev-general"))

	msg := &platform.Message{
		ID: "m1", ChannelID: "ch1", AuthorID: "u1", Content: "hi",
		Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, nil, true))

	got, ok := f.store.GetMessage("m1")
	if !ok {
		t.Fatal("message not persisted")
	}
	if got.ChannelName != "dev-general" || got.IsThread {
		t.Fatalf("canonical = %+v, want plain channel message", got)
	}
	if got.SemanticTopic != models.TopicTech || got.PhaseTag != "pre_launch" {
		t.Fatalf("config values not applied: %+v", got)
	}
	if got.Metadata["category_id"] != "cat-eng" || got.Metadata["category_name"] != "engineering" {
		t.Fatalf("category attribution missing: %v", got.Metadata)
	}
}

func TestUnmonitoredTrafficDroppedSilently(t *testing.T) {
	f := newRouterFixture()
	// registered but monitoring disabled
	cfg := monitored("off", "muted")
	cfg.MonitoringEnabled = false
	f.reg.RegisterChannel(cfg)

	for _, channelID := range []string{"off", "never-registered"} {
		msg := &platform.Message{ID: "m-" + channelID, ChannelID: channelID, AuthorID: "u1", Timestamp: time.Now()}
		thread := (*platform.Thread)(nil)
		known := channelID == "off"
		if !known {
			f.gateway.nodes[channelID] = platform.Channel{ID: channelID, Name: "stray"}
		}
		f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, thread, known))
	}

	if f.store.MessageCount() != 0 {
		t.Fatalf("stored %d messages from unmonitored channels, want 0", f.store.MessageCount())
	}
}

func TestThreadMessageBypassesPatterns(t *testing.T) {
	// The parent channel was registered under include=["release"]; a thread
	// named "random-banter" under it must still be captured.
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch-rel", "release-notes"))

	thread := &platform.Thread{ID: "t1", Name: "random-banter", ParentID: "ch-rel"}
	msg := &platform.Message{
		ID: "m1", ChannelID: "t1", AuthorID: "u1", Content: "offtopic chatter",
		Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, thread, false))

	got, ok := f.store.GetMessage("m1")
	if !ok {
		t.Fatal("thread message not captured")
	}
	if !got.IsThread || got.ThreadName != "random-banter" {
		t.Fatalf("thread identity lost: %+v", got)
	}
	if got.ChannelID != "ch-rel" || got.ChannelName != "release-notes" {
		t.Fatalf("thread message must be attributed to the parent channel: %+v", got)
	}
	if got.ParentChannelID != "ch-rel" || got.ParentChannelName != "release-notes" {
		t.Fatalf("parent channel identity = (%q, %q), want (ch-rel, release-notes)",
			got.ParentChannelID, got.ParentChannelName)
	}
}

func TestThreadMetadataRecoveredByFetch(t *testing.T) {
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch1", "dev-general"))
	f.gateway.nodes["t-lost"] = platform.Thread{ID: "t-lost", Name: "recovered", ParentID: "ch1"}

	msg := &platform.Message{ID: "m1", ChannelID: "t-lost", AuthorID: "u1", Timestamp: time.Now()}
	// no thread metadata on the event, channel not known: the race case
	f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, nil, false))

	if f.gateway.fetches != 1 {
		t.Fatalf("fetches = %d, want exactly 1 recovery fetch", f.gateway.fetches)
	}
	got, ok := f.store.GetMessage("m1")
	if !ok {
		t.Fatal("message dropped despite recoverable thread metadata")
	}
	if !got.IsThread || got.ChannelID != "ch1" {
		t.Fatalf("recovered routing wrong: %+v", got)
	}
}

func TestUnresolvedParentDropped(t *testing.T) {
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch1", "dev-general"))

	// fetch will miss: the event is dropped, not retried
	msg := &platform.Message{ID: "m1", ChannelID: "ghost", AuthorID: "u1", Timestamp: time.Now()}
	f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, nil, false))

	if f.store.MessageCount() != 0 {
		t.Fatal("message with unresolvable channel was persisted")
	}
}

func TestBotAuthorsSkipped(t *testing.T) {
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch1", "dev-general"))

	msg := &platform.Message{ID: "m1", ChannelID: "ch1", AuthorID: "bot-1", AuthorIsBot: true, Timestamp: time.Now()}
	f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, nil, true))

	if f.store.MessageCount() != 0 {
		t.Fatal("bot message was persisted")
	}
}

func TestMessageDeleteRemovesRecord(t *testing.T) {
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch1", "dev-general"))

	msg := &platform.Message{ID: "m1", ChannelID: "ch1", AuthorID: "u1", Timestamp: time.Now()}
	f.router.Handle(context.Background(), messageEvent(platform.EventMessageCreate, msg, nil, true))
	if f.store.MessageCount() != 1 {
		t.Fatal("setup: message not stored")
	}

	f.router.Handle(context.Background(), messageEvent(platform.EventMessageDelete, &platform.Message{ID: "m1"}, nil, false))
	if f.store.MessageCount() != 0 {
		t.Fatal("deleted message still stored")
	}
}

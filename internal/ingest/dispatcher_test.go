package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
)

func TestDispatcherProcessesEvents(t *testing.T) {
	f := newRouterFixture()
	f.reg.RegisterChannel(monitored("ch1", "dev-general"))

	d := NewDispatcher(f.router, 64, 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := 0; i < 20; i++ {
		msg := &platform.Message{
			ID: fmt.Sprintf("m%d", i), ChannelID: "ch1", AuthorID: "u1",
			Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		}
		if !d.Enqueue(messageEvent(platform.EventMessageCreate, msg, nil, true)) {
			t.Fatalf("enqueue %d refused with room to spare", i)
		}
	}

	deadline := time.After(5 * time.Second)
	for f.store.MessageCount() < 20 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 20 events processed", f.store.MessageCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not drain after cancellation")
	}
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	f := newRouterFixture()
	// workers not started: the queue fills and the overflow is refused
	d := NewDispatcher(f.router, 2, 1, zap.NewNop())

	ev := messageEvent(platform.EventMessageCreate, &platform.Message{ID: "m", ChannelID: "ch"}, nil, true)
	if !d.Enqueue(ev) || !d.Enqueue(ev) {
		t.Fatal("queue refused events below capacity")
	}
	if d.Enqueue(ev) {
		t.Fatal("saturated queue accepted an event")
	}
}

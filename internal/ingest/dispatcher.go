// Package ingest turns routed platform events into durable records and
// aggregates. The dispatcher owns a bounded queue fed by the connector and a
// worker pool that processes events concurrently: no ordering is guaranteed
// across events, and the idempotent persistence path is what makes that safe.
package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
	"github.com/caelusway/bio-sync-bot-sub000/internal/platform"
)

// Dispatcher fans inbound platform events out to a fixed pool of workers
// through a bounded queue. Enqueue never blocks the connector: when the
// queue is full the event is dropped with a log line.
type Dispatcher struct {
	router  *Router
	queue   chan platform.Event
	workers int
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(router *Router, queueSize, workers int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 8
	}
	return &Dispatcher{
		router:  router,
		queue:   make(chan platform.Event, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Enqueue hands an event to the worker pool. Returns false when the queue is
// saturated and the event was dropped.
func (d *Dispatcher) Enqueue(ev platform.Event) bool {
	select {
	case d.queue <- ev:
		metrics.EventQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		metrics.MessagesDropped.WithLabelValues(metrics.DropQueueFull).Inc()
		d.logger.Error("Event queue full, dropping event",
			zap.String("kind", ev.Kind.String()))
		return false
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight events finished.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-d.queue:
					metrics.EventQueueDepth.Set(float64(len(d.queue)))
					d.router.Handle(ctx, ev)
				}
			}
		}()
	}
	d.wg.Wait()
}

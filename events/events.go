// Package events carries job, workflow and module lifecycle notifications to
// decoupled subscribers. Delivery is best effort: publishing never blocks on a
// subscriber and never fails the operation that emitted the event.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/util"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, eventType model.EventType, payload map[string]any, source string)
}

type Handler func(evt model.Event) error

func NewEvent(eventType model.EventType, payload map[string]any, source string) model.Event {
	if len(source) == 0 {
		source = model.DEFAULT_EVENT_SOURCE
	}
	return model.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   payload,
	}
}

// ChannelName is the pub/sub channel for an event type, e.g.
// media_creator.job_created.
func ChannelName(prefix string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s", prefix, strings.ToLower(string(eventType)))
}

type subscriber struct {
	name   string
	worker *util.Worker
}

// Bus is the in-process publisher. Each subscriber gets its own goroutine and
// bounded buffer; events for a full buffer are dropped.
type Bus struct {
	mu            sync.RWMutex
	subscribers   map[model.EventType][]*subscriber
	wg            *sync.WaitGroup
	capacity      int
	defaultSource string
	stopped       bool
}

var _ Publisher = new(Bus)

func NewBus(capacity int, defaultSource string) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{
		subscribers:   make(map[model.EventType][]*subscriber),
		wg:            &sync.WaitGroup{},
		capacity:      capacity,
		defaultSource: defaultSource,
	}
}

// Subscribe registers handler for eventType. model.ALL_EVENTS receives every
// event.
func (b *Bus) Subscribe(eventType model.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := fmt.Sprintf("%s-subscriber-%d", strings.ToLower(string(eventType)), len(b.subscribers[eventType]))
	w := util.NewWorker(name, b.wg, func(t util.Task) error {
		evt, ok := t.(model.Event)
		if !ok {
			return fmt.Errorf("unexpected task %T", t)
		}
		return handler(evt)
	}, b.capacity)
	w.Start()
	b.subscribers[eventType] = append(b.subscribers[eventType], &subscriber{name: name, worker: w})
}

func (b *Bus) Publish(ctx context.Context, eventType model.EventType, payload map[string]any, source string) {
	if len(source) == 0 {
		source = b.defaultSource
	}
	evt := NewEvent(eventType, payload, source)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return
	}
	deliver := func(subs []*subscriber) {
		for _, sub := range subs {
			if !sub.worker.TrySend(evt) {
				logger.Warn("event dropped, subscriber buffer full", zap.String("subscriber", sub.name), zap.String("event", string(eventType)))
			}
		}
	}
	deliver(b.subscribers[eventType])
	if eventType != model.ALL_EVENTS {
		deliver(b.subscribers[model.ALL_EVENTS])
	}
}

func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.worker.Stop()
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// MultiPublisher hands every event to each of its publishers in order.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, eventType model.EventType, payload map[string]any, source string) {
	for _, p := range m {
		p.Publish(ctx, eventType, payload, source)
	}
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.EventType, map[string]any, string) {}

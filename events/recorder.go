package events

import (
	"context"
	"sync"

	"github.com/mohitkumar/mediaflow/model"
)

// Recorder keeps every published event in memory. It is synchronous and meant
// for tests and debugging.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

var _ Publisher = new(Recorder)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, eventType model.EventType, payload map[string]any, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, NewEvent(eventType, payload, source))
}

func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

func (r *Recorder) Count(eventType model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/mediaflow/model"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, bus *Bus){
		"delivers to type and wildcard subscribers": testDelivery,
		"slow subscriber does not block publisher":  testSlowSubscriber,
		"panicking subscriber does not stop others": testPanickingSubscriber,
		"publish without subscribers":               testNoSubscribers,
	} {
		t.Run(scenario, func(t *testing.T) {
			bus := NewBus(2, model.DEFAULT_EVENT_SOURCE)
			defer bus.Stop()
			fn(t, bus)
		})
	}
}

func testDelivery(t *testing.T, bus *Bus) {
	typed := make(chan model.Event, 4)
	all := make(chan model.Event, 4)
	bus.Subscribe(model.JOB_CREATED, func(evt model.Event) error {
		typed <- evt
		return nil
	})
	bus.Subscribe(model.ALL_EVENTS, func(evt model.Event) error {
		all <- evt
		return nil
	})

	bus.Publish(context.Background(), model.JOB_CREATED, map[string]any{"job_id": "j1"}, "")
	bus.Publish(context.Background(), model.JOB_STARTED, map[string]any{"job_id": "j1"}, "worker")

	select {
	case evt := <-typed:
		require.Equal(t, model.JOB_CREATED, evt.Type)
		require.Equal(t, model.DEFAULT_EVENT_SOURCE, evt.Source)
		require.Equal(t, "j1", evt.Payload["job_id"])
	case <-time.After(time.Second):
		t.Fatal("typed subscriber did not receive event")
	}

	got := map[model.EventType]string{}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-all:
			got[evt.Type] = evt.Source
		case <-time.After(time.Second):
			t.Fatal("wildcard subscriber did not receive event")
		}
	}
	require.Equal(t, "worker", got[model.JOB_STARTED])
	require.Len(t, typed, 0)
}

func testSlowSubscriber(t *testing.T, bus *Bus) {
	release := make(chan struct{})
	defer close(release)
	bus.Subscribe(model.JOB_CREATED, func(evt model.Event) error {
		<-release
		return nil
	})
	var mu sync.Mutex
	fast := 0
	bus.Subscribe(model.JOB_CREATED, func(evt model.Event) error {
		mu.Lock()
		fast++
		mu.Unlock()
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(context.Background(), model.JOB_CREATED, nil, "")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fast > 0
	}, time.Second, 10*time.Millisecond)
}

func testPanickingSubscriber(t *testing.T, bus *Bus) {
	received := make(chan struct{}, 2)
	bus.Subscribe(model.JOB_FAILED, func(evt model.Event) error {
		panic("boom")
	})
	bus.Subscribe(model.JOB_FAILED, func(evt model.Event) error {
		received <- struct{}{}
		return nil
	})
	bus.Publish(context.Background(), model.JOB_FAILED, nil, "")
	bus.Publish(context.Background(), model.JOB_FAILED, nil, "")
	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("healthy subscriber starved by panicking one")
		}
	}
}

func testNoSubscribers(t *testing.T, bus *Bus) {
	bus.Publish(context.Background(), model.WORKFLOW_STARTED, map[string]any{"draft_id": "d1"}, "")
}

func TestChannelName(t *testing.T) {
	require.Equal(t, "media_creator.job_created", ChannelName("media_creator", model.JOB_CREATED))
	require.Equal(t, "media_creator.workflow_started", ChannelName("media_creator", model.WORKFLOW_STARTED))
}

func TestMultiPublisher(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	MultiPublisher{a, b, NoopPublisher{}}.Publish(context.Background(), model.MODULE_REGISTERED, nil, "")
	require.Equal(t, []model.EventType{model.MODULE_REGISTERED}, a.Types())
	require.Equal(t, []model.EventType{model.MODULE_REGISTERED}, b.Types())
	require.Equal(t, model.DEFAULT_EVENT_SOURCE, a.Events()[0].Source)
}

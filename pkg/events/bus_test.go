package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventBus_PublishDeliversToTypeAndWildcard(t *testing.T) {
	bus := NewEventBus(nil)
	got := make(chan string, 2)

	bus.Subscribe(CallStateChanged, func(e Event) error {
		got <- "typed:" + e.Data["state"].(string)
		return nil
	})
	bus.Subscribe("*", func(e Event) error {
		got <- "any:" + e.Type
		return nil
	})

	bus.Publish(Event{Type: CallStateChanged, Data: map[string]interface{}{"state": "active"}})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			seen[s] = true
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}
	assert.True(t, seen["typed:active"])
	assert.True(t, seen["any:"+CallStateChanged])
}

func TestEventBus_StampsTimestamp(t *testing.T) {
	bus := NewEventBus(nil)
	got := make(chan Event, 1)
	bus.Subscribe(CallStatusObserved, func(e Event) error {
		got <- e
		return nil
	})

	before := time.Now()
	bus.Publish(Event{Type: CallStatusObserved, Source: "poller"})

	select {
	case e := <-got:
		assert.False(t, e.Timestamp.Before(before))
		assert.Equal(t, "poller", e.Source)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestEventBus_HandlerErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewEventBus(zap.New(core))

	bus.Subscribe(CallStatusObserved, func(Event) error { return errors.New("boom") })
	bus.Publish(Event{Type: CallStatusObserved})

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	entry := logs.All()[0]
	assert.Equal(t, "[EventBus] handler failed", entry.Message)
	assert.Equal(t, CallStatusObserved, entry.ContextMap()["eventType"])
}

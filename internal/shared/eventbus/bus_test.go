package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// DummyEvent implements Event for testing
type DummyEvent struct {
	typeStr   string
	data      interface{}
	timestamp time.Time
	source    string
}

func (e *DummyEvent) Type() string         { return e.typeStr }
func (e *DummyEvent) Data() interface{}    { return e.data }
func (e *DummyEvent) Timestamp() time.Time { return e.timestamp }
func (e *DummyEvent) Source() string       { return e.source }

func TestEventBus_SubscribePublish(t *testing.T) {
	bus := NewEventBus(nil)
	var called bool
	bus.Subscribe("test", func(ctx context.Context, event Event) error {
		called = true
		assert.Equal(t, "test", event.Type())
		return nil
	})
	err := bus.Publish(context.Background(), &DummyEvent{typeStr: "test", timestamp: time.Now()})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestEventBus_UnsubscribeSingleHandler(t *testing.T) {
	bus := NewEventBus(nil)
	var first, second int
	id1 := bus.Subscribe("ev", func(ctx context.Context, event Event) error { first++; return nil })
	bus.Subscribe("ev", func(ctx context.Context, event Event) error { second++; return nil })
	assert.Equal(t, 2, bus.GetSubscriberCount("ev"))

	bus.Unsubscribe("ev", id1)
	bus.Unsubscribe("ev", id1)
	assert.Equal(t, 1, bus.GetSubscriberCount("ev"))

	assert.NoError(t, bus.Publish(context.Background(), NewBasicEvent("ev", nil)))
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestEventBus_GetEventTypes(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Subscribe("a", func(ctx context.Context, event Event) error { return nil })
	bus.Subscribe("b", func(ctx context.Context, event Event) error { return nil })
	types := bus.GetEventTypes()
	assert.Contains(t, types, "a")
	assert.Contains(t, types, "b")
}

func TestEventBus_StopsAtFirstFailure(t *testing.T) {
	bus := NewEventBus(nil)
	boom := errors.New("nope")
	var calls []string
	bus.Subscribe("flaky", func(ctx context.Context, event Event) error {
		calls = append(calls, "first")
		return boom
	})
	bus.Subscribe("flaky", func(ctx context.Context, event Event) error {
		calls = append(calls, "second")
		return nil
	})
	err := bus.Publish(context.Background(), NewBasicEvent("flaky", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), NewBasicEvent("nobody", nil)))
	assert.Empty(t, bus.GetEventTypes())
}

package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ottoflow/otto/pkg/channels/gochannel"
	"github.com/ottoflow/otto/pkg/eventbus"
	"github.com/ottoflow/otto/pkg/events"
	"github.com/ottoflow/otto/pkg/jsontree"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.ExecutionCompleted, 1)

	err := bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event interface{}) error {
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)

		received <- completed

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	published := events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, "deploy"),
		ExecutionID:   "exec-1",
		DurationMs:    125,
		StepsExecuted: 3,
		Output:        jsontree.MustFromAny(map[string]any{"ok": true}),
	}

	require.NoError(t, bus.Publish(ctx, "exec-1", published))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "deploy", event.WorkflowName)
		assert.Equal(t, 3, event.StepsExecuted)
		assert.True(t, published.Output.Equal(event.Output))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_UnhandledEventIsAcked(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered: publish must not block or error.
	event := events.StepSkipped{
		BaseEvent:   events.NewBaseEvent(events.StepSkippedEvent, "deploy"),
		ExecutionID: "exec-1",
		StepName:    "notify",
		Condition:   "${variables.notify}",
	}

	require.NoError(t, bus.Publish(ctx, "exec-1", event))
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

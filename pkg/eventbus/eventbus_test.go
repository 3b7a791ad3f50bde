package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/flowmesh/flowmesh/pkg/channels/gochannel"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() {
		_ = bus.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan events.Event, 1)

	err = bus.Subscribe(ctx, func(_ context.Context, event events.Event) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	queued := events.MessageQueued{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.MessageQueuedEvent,
			Timestamp: time.Now().UTC(),
			FlowID:    "flow-1",
		},
		MessageID:     "m-1",
		CorrelationID: "corr-1",
	}

	require.NoError(t, bus.Publish(ctx, queued))

	select {
	case event := <-received:
		decoded, ok := event.(*events.MessageQueued)
		require.True(t, ok)
		assert.Equal(t, "m-1", decoded.MessageID)
		assert.Equal(t, "flow-1", decoded.FlowID)
		assert.Equal(t, events.MessageQueuedEvent, decoded.GetType())
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}

func TestGenerateIDIsUnique(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() {
		_ = bus.Close()
	}()

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}

package linkedingo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFromEntity_TypingIndicator(t *testing.T) {
	c := NewClient(zerolog.Nop(), nil, nil)
	var received []*RealTimeEvent
	c.AddEventListener(RealtimeEventFromEntity, func(ctx context.Context, evt *RealTimeEvent) {
		received = append(received, evt)
	})

	frame := `{
		"com.linkedin.realtimefrontend.DecoratedEvent": {
			"topic": "urn:li-realtime:tabReplays-topic:urn:li-realtime:myself",
			"payload": {
				"conversation": "urn:li:fs_conversation:2-abc",
				"fromEntity": "urn:li:fs_miniProfile:actor1"
			}
		}
	}`
	c.handleStreamFrame(zerolog.Nop().WithContext(context.Background()), json.RawMessage(frame))

	require.Len(t, received, 1)
	evt := received[0]
	assert.Nil(t, evt.SeenReceipt)
	assert.Equal(t, "actor1", evt.FromEntity.ID())
	_, thread, err := evt.DecodeConversation()
	require.NoError(t, err)
	assert.Equal(t, "2-abc", thread.ID())
}

func TestDispatchFromEntity_SeenReceipt(t *testing.T) {
	c := NewClient(zerolog.Nop(), nil, nil)
	var received []*RealTimeEvent
	c.AddEventListener(RealtimeEventFromEntity, func(ctx context.Context, evt *RealTimeEvent) {
		received = append(received, evt)
	})

	frame := `{
		"com.linkedin.realtimefrontend.DecoratedEvent": {
			"topic": "urn:li-realtime:messageSeenReceipts-topic:urn:li-realtime:myself",
			"payload": {
				"fromEntity": "urn:li:fs_miniProfile:actor1",
				"seenReceipt": {
					"eventUrn": "urn:li:fs_event:(2-abc,2-msg1)",
					"seenAt": 1700000000000
				}
			}
		}
	}`
	c.handleStreamFrame(zerolog.Nop().WithContext(context.Background()), json.RawMessage(frame))

	require.Len(t, received, 1)
	evt := received[0]
	require.NotNil(t, evt.SeenReceipt)
	thread, message, err := evt.SeenReceipt.EventURN.ThreadAndMessage()
	require.NoError(t, err)
	assert.Equal(t, "2-abc", thread.ID())
	assert.Equal(t, "2-msg1", message.ID())
}

package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/queue"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	msg, err := queue.NewMessage(queue.TypeAttendanceChanged, map[string]string{"sectionId": "sec1"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	require.NoError(t, q.Publish(ctx, msg))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, queue.TypeAttendanceChanged, got.Type)
		var body map[string]string
		require.NoError(t, got.Decode(&body))
		assert.Equal(t, "sec1", body["sectionId"])
	case <-time.After(time.Second):
		t.Fatal("no message consumed")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := queue.NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, queue.Message{Type: "x"}), context.Canceled)
}

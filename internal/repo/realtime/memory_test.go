package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) handle(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestHub(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	var a, b, other recorder
	subA, err := hub.Subscribe(ctx, "chat-1", a.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "chat-1", b.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "chat-2", other.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Members("chat-1"))

	require.NoError(t, hub.Publish(ctx, "chat-1", models.Event{Type: models.EventCursorMove, ChatID: "chat-1"}))
	assert.Equal(t, 1, a.len())
	assert.Equal(t, 1, b.len())
	assert.Equal(t, 0, other.len())

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		require.NoError(t, subA.Unsubscribe())
		require.NoError(t, subA.Unsubscribe())
		require.NoError(t, hub.Publish(ctx, "chat-1", models.Event{Type: models.EventNodeSelect}))
		assert.Equal(t, 1, a.len())
		assert.Equal(t, 2, b.len())
	})

	t.Run("no replay for late subscribers", func(t *testing.T) {
		var late recorder
		_, err := hub.Subscribe(ctx, "chat-1", late.handle)
		require.NoError(t, err)
		assert.Equal(t, 0, late.len())
	})

	t.Run("closed hub rejects", func(t *testing.T) {
		require.NoError(t, hub.Close())
		assert.ErrorIs(t, hub.Publish(ctx, "chat-1", models.Event{}), ErrClosed)
		_, err := hub.Subscribe(ctx, "chat-1", a.handle)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

type failingTransport struct{ Hub }

func (*failingTransport) Publish(context.Context, string, models.Event) error {
	return assert.AnError
}

func TestBroadcasterSwallowsErrors(t *testing.T) {
	b := NewBroadcaster(&failingTransport{})
	assert.NotPanics(t, func() {
		b.Broadcast(context.Background(), models.Event{Type: models.EventUserLeave, ChatID: "c"})
	})
}

func TestBroadcasterStampsTimestamp(t *testing.T) {
	hub := NewHub()
	var r recorder
	_, err := hub.Subscribe(context.Background(), "c", r.handle)
	require.NoError(t, err)

	NewBroadcaster(hub).Broadcast(context.Background(), models.Event{Type: models.EventNodeCreate, ChatID: "c"})
	require.Equal(t, 1, r.len())
	assert.False(t, r.events[0].Timestamp.IsZero())
}

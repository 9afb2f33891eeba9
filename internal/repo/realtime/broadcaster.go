package realtime

import (
	"context"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

// Broadcaster publishes to a chat's room and swallows transport errors.
type Broadcaster struct {
	transport Transport
}

func NewBroadcaster(transport Transport) *Broadcaster {
	return &Broadcaster{
		transport: transport,
	}
}

func (b *Broadcaster) Broadcast(ctx context.Context, event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := b.transport.Publish(ctx, event.ChatID, event); err != nil {
		// Log error but don't fail the operation
		log.Warnw(ctx, "failed to broadcast event", "chat_id", event.ChatID, "type", event.Type, "error", err)
	}
}

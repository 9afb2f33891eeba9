// Package realtime carries ephemeral chat room events between viewers.
// Delivery is at most once with no replay.
package realtime

import (
	"context"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

// Handler receives events for a room. It must not block.
type Handler func(models.Event)

type Subscription interface {
	Unsubscribe() error
}

type Transport interface {
	Publish(ctx context.Context, room string, event models.Event) error
	Subscribe(ctx context.Context, room string, handler Handler) (Subscription, error)
	Close() error
}

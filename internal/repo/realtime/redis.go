package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
)

// RedisTransport fans events out through Redis pub/sub so viewers connected
// to different instances share a room.
type RedisTransport struct {
	rdb    redis.UniversalClient
	prefix string
	log    *logger.Logger
}

func NewRedisTransport(rdb redis.UniversalClient, prefix string) *RedisTransport {
	return &RedisTransport{
		rdb:    rdb,
		prefix: prefix,
		log:    logger.MustNamed("realtime.redis"),
	}
}

func (t *RedisTransport) channel(room string) string {
	return t.prefix + room
}

func (t *RedisTransport) Publish(ctx context.Context, room string, event models.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return t.rdb.Publish(ctx, t.channel(room), raw).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, room string, handler Handler) (Subscription, error) {
	sub := t.rdb.Subscribe(ctx, t.channel(room))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &redisSubscription{sub: sub, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for m := range sub.Channel() {
			var event models.Event
			if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
				t.log.Warnw("bad realtime payload", "room", room, "error", err)
				continue
			}
			handler(event)
		}
	}()
	return s, nil
}

func (t *RedisTransport) Close() error {
	return nil
}

type redisSubscription struct {
	sub  *redis.PubSub
	once sync.Once
	done chan struct{}
	err  error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.sub.Close()
		<-s.done
	})
	return s.err
}

package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

var ErrClosed = errors.New("transport closed")

// Hub is a single-process Transport.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]Handler
	nextID atomic.Uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[uint64]Handler)}
}

func (h *Hub) Publish(_ context.Context, room string, event models.Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(h.rooms[room]))
	for _, fn := range h.rooms[room] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, room string, handler Handler) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	id := h.nextID.Add(1)
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[uint64]Handler)
	}
	h.rooms[room][id] = handler
	return &hubSubscription{hub: h, room: room, id: id}, nil
}

// Members returns the number of live subscriptions in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.rooms = make(map[string]map[uint64]Handler)
	return nil
}

func (h *Hub) remove(room string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], id)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

type hubSubscription struct {
	hub  *Hub
	room string
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() error {
	s.once.Do(func() { s.hub.remove(s.room, s.id) })
	return nil
}

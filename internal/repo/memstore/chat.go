package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type ChatStore struct {
	mu    sync.RWMutex
	chats map[models.ObjectID]models.Chat
}

func NewChatStore() *ChatStore {
	return &ChatStore{chats: make(map[models.ObjectID]models.Chat)}
}

func (s *ChatStore) Create(_ context.Context, chat *models.Chat) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *chat
	if c.ID == "" {
		c.ID = models.NewObjectID()
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.chats[c.ID] = c
	return &c, nil
}

func (s *ChatStore) GetByID(_ context.Context, id models.ObjectID) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (s *ChatStore) SetCollaborative(_ context.Context, id models.ObjectID, collaborative bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[id]
	if !ok {
		return models.ErrNotFound
	}
	c.IsCollaborative = collaborative
	c.UpdatedAt = time.Now()
	s.chats[id] = c
	return nil
}

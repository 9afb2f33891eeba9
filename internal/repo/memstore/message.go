// Package memstore keeps chat data in process memory. It backs tests and
// DATABASE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/graph"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type MessageStore struct {
	mu       sync.RWMutex
	messages map[models.ObjectID]models.Message
	now      func() time.Time
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[models.ObjectID]models.Message),
		now:      time.Now,
	}
}

func (s *MessageStore) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *msg
	if m.ID == "" {
		m.ID = models.NewObjectID()
	}
	if _, ok := s.messages[m.ID]; ok {
		return nil, fmt.Errorf("message %s exists: %w", m.ID, models.ErrValidation)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.messages[m.ID] = m
	return &m, nil
}

func (s *MessageStore) GetByID(_ context.Context, id models.ObjectID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &m, nil
}

func (s *MessageStore) ListByChat(_ context.Context, chatID models.ObjectID) ([]*models.Message, error) {
	return s.filter(func(m *models.Message) bool { return m.ChatID == chatID }), nil
}

func (s *MessageStore) ListChildren(_ context.Context, parentID models.ObjectID) ([]*models.Message, error) {
	return s.filter(func(m *models.Message) bool { return m.ParentKey() == parentID }), nil
}

func (s *MessageStore) filter(keep func(*models.Message) bool) []*models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Message
	for _, m := range s.messages {
		if keep(&m) {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MessageStore) UpdatePositionsBatch(_ context.Context, chatID models.ObjectID, updates []models.PositionUpdate, editedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		m, ok := s.messages[u.ID]
		if !ok || m.ChatID != chatID {
			return fmt.Errorf("message %s not in chat %s: %w", u.ID, chatID, models.ErrForbidden)
		}
	}

	now := s.now()
	for _, u := range updates {
		m := s.messages[u.ID]
		m.XPosition, m.YPosition = u.X, u.Y
		m.LastEditedBy = &editedBy
		m.EditedAt = &now
		s.messages[u.ID] = m
	}
	return nil
}

func (s *MessageStore) UpdateFlags(_ context.Context, id models.ObjectID, flags models.FlagsUpdate, editedBy string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if flags.IsCollapsed != nil {
		m.IsCollapsed = *flags.IsCollapsed
	}
	if flags.IsLocked != nil {
		m.IsLocked = *flags.IsLocked
	}
	now := s.now()
	m.LastEditedBy = &editedBy
	m.EditedAt = &now
	s.messages[id] = m
	return &m, nil
}

func (s *MessageStore) DeleteSubtree(_ context.Context, rootID models.ObjectID) ([]models.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.messages[rootID]
	if !ok {
		return nil, models.ErrNotFound
	}
	var chat []*models.Message
	for _, m := range s.messages {
		if m.ChatID == root.ChatID {
			chat = append(chat, &m)
		}
	}
	ids := graph.BuildForest(chat).SubtreeIDs(rootID)
	for _, id := range ids {
		delete(s.messages, id)
	}
	return ids, nil
}

package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type ActivityStore struct {
	mu         sync.RWMutex
	activities []models.Activity
}

func NewActivityStore() *ActivityStore {
	return &ActivityStore{}
}

func (s *ActivityStore) Create(_ context.Context, activity *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activity.ID == "" {
		activity.ID = models.NewObjectID()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	s.activities = append(s.activities, *activity)
	return nil
}

// ListByChat returns the newest activities first.
func (s *ActivityStore) ListByChat(_ context.Context, chatID models.ObjectID, limit int) ([]*models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Activity
	for i := len(s.activities) - 1; i >= 0; i-- {
		if s.activities[i].ChatID != chatID {
			continue
		}
		a := s.activities[i]
		out = append(out, &a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

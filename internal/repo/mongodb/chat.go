package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.Chat, error)
	SetCollaborative(ctx context.Context, id models.ObjectID, collaborative bool) error
}

type chatRepo struct {
	baseRepo[models.Chat]
}

func NewChatRepository(db *DB) ChatRepository {
	return &chatRepo{
		baseRepo: newBaseRepo[models.Chat](db.Database),
	}
}

func (r *chatRepo) Create(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	c := *chat
	if c.ID == "" {
		c.ID = models.NewObjectID()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := r.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &c, nil
}

func (r *chatRepo) GetByID(ctx context.Context, id models.ObjectID) (*models.Chat, error) {
	return r.FindByID(ctx, id)
}

func (r *chatRepo) SetCollaborative(ctx context.Context, id models.ObjectID, collaborative bool) error {
	return r.UpdateByID(ctx, id, models.Chat{IsCollaborative: collaborative})
}

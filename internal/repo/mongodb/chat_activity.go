package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChatActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByChat(ctx context.Context, chatID models.ObjectID, limit int) ([]*models.Activity, error)
}

type chatActivityRepo struct {
	baseRepo[models.Activity]
}

func NewChatActivityRepository(db *DB) ChatActivityRepository {
	return &chatActivityRepo{
		baseRepo: newBaseRepo[models.Activity](db.Database),
	}
}

func (r *chatActivityRepo) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = models.NewObjectID()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}

	if _, err := r.Insert(ctx, *activity); err != nil {
		return fmt.Errorf("failed to create chat activity: %w", err)
	}
	return nil
}

func (r *chatActivityRepo) ListByChat(ctx context.Context, chatID models.ObjectID, limit int) ([]*models.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	activities, err := r.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get activities by chat: %w", err)
	}
	out := make([]*models.Activity, len(activities))
	for i := range activities {
		out[i] = &activities[i]
	}
	return out, nil
}

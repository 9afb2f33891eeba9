package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.Message, error)
	ListByChat(ctx context.Context, chatID models.ObjectID) ([]*models.Message, error)
	ListChildren(ctx context.Context, parentID models.ObjectID) ([]*models.Message, error)
	UpdatePositionsBatch(ctx context.Context, chatID models.ObjectID, updates []models.PositionUpdate, editedBy string) error
	UpdateFlags(ctx context.Context, id models.ObjectID, flags models.FlagsUpdate, editedBy string) (*models.Message, error)
	DeleteSubtree(ctx context.Context, rootID models.ObjectID) ([]models.ObjectID, error)
}

type messageRepo struct {
	baseRepo[models.Message]
	db *DB
}

func NewMessageRepository(db *DB) MessageRepository {
	return &messageRepo{
		baseRepo: newBaseRepo[models.Message](db.Database),
		db:       db,
	}
}

var treeOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	m := *msg
	if m.ID == "" {
		m.ID = models.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if _, err := r.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &m, nil
}

func (r *messageRepo) GetByID(ctx context.Context, id models.ObjectID) (*models.Message, error) {
	return r.FindByID(ctx, id)
}

func (r *messageRepo) ListByChat(ctx context.Context, chatID models.ObjectID) ([]*models.Message, error) {
	return r.list(ctx, bson.M{"chat_id": chatID})
}

func (r *messageRepo) ListChildren(ctx context.Context, parentID models.ObjectID) ([]*models.Message, error) {
	return r.list(ctx, bson.M{"parent_id": parentID})
}

func (r *messageRepo) list(ctx context.Context, filter bson.M) ([]*models.Message, error) {
	msgs, err := r.Find(ctx, filter, options.Find().SetSort(treeOrder))
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	out := make([]*models.Message, len(msgs))
	for i := range msgs {
		out[i] = &msgs[i]
	}
	return out, nil
}

func (r *messageRepo) UpdatePositionsBatch(ctx context.Context, chatID models.ObjectID, updates []models.PositionUpdate, editedBy string) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]models.ObjectID, 0, len(updates))
	seen := make(map[models.ObjectID]struct{}, len(updates))
	for _, u := range updates {
		if !u.ID.IsValid() {
			return fmt.Errorf("message %s: %w", u.ID, models.ErrForbidden)
		}
		if _, ok := seen[u.ID]; !ok {
			seen[u.ID] = struct{}{}
			ids = append(ids, u.ID)
		}
	}

	now := time.Now()
	items := make([]PartialBulkUpdateItem, 0, len(updates))
	for _, u := range updates {
		items = append(items, PartialBulkUpdateItem{
			ID:     u.ID,
			Filter: bson.M{"chat_id": chatID},
			Set: bson.M{
				"x_position":     u.X,
				"y_position":     u.Y,
				"last_edited_by": editedBy,
				"edited_at":      now,
			},
		})
	}

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		owned, err := r.Count(ctx, bson.M{"_id": bson.M{"$in": ids}, "chat_id": chatID})
		if err != nil {
			return fmt.Errorf("count owned messages: %w", err)
		}
		if owned != int64(len(ids)) {
			return fmt.Errorf("%d of %d messages outside chat %s: %w", int64(len(ids))-owned, len(ids), chatID, models.ErrForbidden)
		}
		return r.PartialBulkUpdateByIDs(ctx, items)
	})
}

func (r *messageRepo) UpdateFlags(ctx context.Context, id models.ObjectID, flags models.FlagsUpdate, editedBy string) (*models.Message, error) {
	set := bson.M{
		"last_edited_by": editedBy,
		"edited_at":      time.Now(),
	}
	if flags.IsCollapsed != nil {
		set["is_collapsed"] = *flags.IsCollapsed
	}
	if flags.IsLocked != nil {
		set["is_locked"] = *flags.IsLocked
	}

	var updated models.Message
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update flags: %w", err)
	}
	return &updated, nil
}

type subtreeResult struct {
	ID          models.ObjectID `bson:"_id"`
	Descendants []struct {
		ID models.ObjectID `bson:"_id"`
	} `bson:"descendants"`
}

func (r *messageRepo) DeleteSubtree(ctx context.Context, rootID models.ObjectID) ([]models.ObjectID, error) {
	root, err := r.FindByID(ctx, rootID)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": rootID}}},
		{{Key: "$graphLookup", Value: bson.M{
			"from":                    root.CollectionName(),
			"startWith":               "$_id",
			"connectFromField":        "_id",
			"connectToField":          "parent_id",
			"as":                      "descendants",
			"restrictSearchWithMatch": bson.M{"chat_id": root.ChatID},
		}}},
		{{Key: "$project", Value: bson.M{"descendants._id": 1}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate subtree: %w", err)
	}
	var results []subtreeResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode subtree: %w", err)
	}

	ids := []models.ObjectID{rootID}
	for _, res := range results {
		for _, d := range res.Descendants {
			ids = append(ids, d.ID)
		}
	}

	err = r.db.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := r.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete subtree: %w", err)
	}
	return ids, nil
}

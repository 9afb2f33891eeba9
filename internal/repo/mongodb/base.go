package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// keep the baseRepo implementation in sync with IRepository interface
var _ IRepository[IEntity] = (*baseRepo[IEntity])(nil)

type IEntity interface {
	CollectionName() string
	GetUpdates() any
	GetObjectID() models.ObjectID
}

type IRepository[E IEntity] interface {
	Insert(ctx context.Context, entity E, opts ...*options.InsertOneOptions) (string, error)
	Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]E, error)
	FindByID(ctx context.Context, docID models.ObjectID) (*E, error)
	FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*E, error)
	UpdateOne(ctx context.Context, filter bson.M, entity E, opts ...*options.FindOneAndUpdateOptions) (*E, error)
	UpsertOne(ctx context.Context, filter bson.M, set any, upsertOpts UpsertOpts, opts ...*options.FindOneAndUpdateOptions) (*E, error)
	UpdateByID(ctx context.Context, id models.ObjectID, entity E) error
	PartialBulkUpdateByIDs(ctx context.Context, params []PartialBulkUpdateItem) error
	DeleteOne(ctx context.Context, filter bson.M) error
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
	Count(ctx context.Context, filter bson.M, opts ...*options.CountOptions) (int64, error)
}

type baseRepo[E IEntity] struct {
	coll *mongo.Collection
}

func newBaseRepo[E IEntity](dbc *mongo.Database) baseRepo[E] {
	var entity E
	return baseRepo[E]{
		coll: dbc.Collection(entity.CollectionName()),
	}
}

// this is a helper function to get the collection, but only for scripting purposes
func (r *baseRepo[E]) GetCollection() *mongo.Collection {
	return r.coll
}

func (r *baseRepo[E]) Insert(ctx context.Context, entity E, opts ...*options.InsertOneOptions) (string, error) {
	if _, err := r.coll.InsertOne(ctx, entity, opts...); err != nil {
		return "", fmt.Errorf("insert one: %w", err)
	}
	return entity.GetObjectID().String(), nil
}

func (r *baseRepo[E]) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]E, error) {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var entities []E
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepo[E]) FindByID(ctx context.Context, docID models.ObjectID) (*E, error) {
	if !docID.IsValid() {
		return nil, models.ErrNotFound
	}
	return r.FindOne(ctx, bson.M{"_id": docID})
}

func (r *baseRepo[E]) FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*E, error) {
	var entity E
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&entity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepo[E]) UpdateOne(ctx context.Context, filter bson.M, entity E, opts ...*options.FindOneAndUpdateOptions) (*E, error) {
	update := bson.M{
		"$set": entity.GetUpdates(),
	}
	updateOpt := options.
		FindOneAndUpdate().
		SetReturnDocument(options.After)
	opts = append(opts, updateOpt)

	var updatedEntity E
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts...).Decode(&updatedEntity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updatedEntity, nil
}

type UpsertOpts struct {
	SetOnInsert bson.M
	Unset       bson.M
}

func (r *baseRepo[E]) UpsertOne(ctx context.Context, filter bson.M, set any, upsertOpts UpsertOpts, opts ...*options.FindOneAndUpdateOptions) (*E, error) {
	update := bson.M{
		"$set": set,
	}
	if upsertOpts.SetOnInsert != nil {
		update["$setOnInsert"] = upsertOpts.SetOnInsert
	}
	if upsertOpts.Unset != nil {
		update["$unset"] = upsertOpts.Unset
	}
	var updatedEntity E
	upsertOpt := options.
		FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	opts = append(opts, upsertOpt)
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts...).Decode(&updatedEntity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updatedEntity, nil
}

func (r *baseRepo[E]) UpdateByID(ctx context.Context, docID models.ObjectID, entity E) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
		"$set": entity.GetUpdates(),
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *baseRepo[E]) DeleteOne(ctx context.Context, filter bson.M) error {
	result, err := r.coll.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *baseRepo[E]) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *baseRepo[E]) Count(ctx context.Context, filter bson.M, opts ...*options.CountOptions) (int64, error) {
	return r.coll.CountDocuments(ctx, filter, opts...)
}

type PartialBulkUpdateItem struct {
	ID     models.ObjectID
	Filter bson.M
	Set    bson.M
	Unset  bson.M
}

func (r *baseRepo[E]) PartialBulkUpdateByIDs(ctx context.Context, params []PartialBulkUpdateItem) error {
	items := []mongo.WriteModel{}
	for _, p := range params {
		if len(p.Set) == 0 && len(p.Unset) == 0 {
			continue
		}

		update := bson.M{}
		if len(p.Set) > 0 {
			update["$set"] = p.Set
		}
		if len(p.Unset) > 0 {
			update["$unset"] = p.Unset
		}
		filter := bson.M{"_id": p.ID}
		for k, v := range p.Filter {
			filter[k] = v
		}
		item := mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(update)
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}
	_, err := r.coll.BulkWrite(ctx, items)
	if err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	return nil
}

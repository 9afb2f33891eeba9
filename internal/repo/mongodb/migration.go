package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

const indexesMigration = "indexes_v1"

// MigrationRepository handles database migrations
type MigrationRepository interface {
	EnsureIndexes(ctx context.Context) error
	GetMigrationStatus(ctx context.Context, migrationName string) (*MigrationStatus, error)
	SetMigrationStatus(ctx context.Context, migrationName string, status string, result *MigrationResult) error
}

type migrationRepo struct {
	db *DB
}

// MigrationStatus tracks the status of database migrations
type MigrationStatus struct {
	Name        string           `bson:"name" json:"name"`
	Status      string           `bson:"status" json:"status"` // "running", "completed", "failed"
	StartedAt   *time.Time       `bson:"started_at" json:"started_at"`
	CompletedAt *time.Time       `bson:"completed_at" json:"completed_at"`
	Result      *MigrationResult `bson:"result,omitempty" json:"result,omitempty"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

// MigrationResult contains the results of a migration
type MigrationResult struct {
	IndexesCreated []string `bson:"indexes_created,omitempty" json:"indexes_created,omitempty"`
	Errors         []string `bson:"errors,omitempty" json:"errors,omitempty"`
	Duration       string   `bson:"duration" json:"duration"`
}

func NewMigrationRepository(db *DB) MigrationRepository {
	return &migrationRepo{
		db: db,
	}
}

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexPlan() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: models.Message{}.CollectionName(),
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}}},
				{Keys: bson.D{{Key: "parent_id", Value: 1}}},
			},
		},
		{
			collection: models.Chat{}.CollectionName(),
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "owner_id", Value: 1}}},
			},
		},
		{
			collection: models.CollaborationSession{}.CollectionName(),
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "chat_id", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "last_activity", Value: 1}}},
			},
		},
		{
			collection: models.Participant{}.CollectionName(),
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			collection: models.Activity{}.CollectionName(),
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}}},
			},
		},
	}
}

// EnsureIndexes creates the indexes the repositories query by. It is safe to
// run on every start.
func (r *migrationRepo) EnsureIndexes(ctx context.Context) error {
	startTime := time.Now()
	if err := r.SetMigrationStatus(ctx, indexesMigration, "running", nil); err != nil {
		return err
	}

	result := &MigrationResult{}
	var errs []error
	for _, plan := range indexPlan() {
		names, err := r.db.Database.Collection(plan.collection).Indexes().CreateMany(ctx, plan.models)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", plan.collection, err))
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.IndexesCreated = append(result.IndexesCreated, names...)
	}
	result.Duration = time.Since(startTime).String()

	if err := errors.Join(errs...); err != nil {
		if setErr := r.SetMigrationStatus(ctx, indexesMigration, "failed", result); setErr != nil {
			log.Errorw(ctx, "Failed to set migration failure status", "error", setErr)
		}
		return err
	}

	log.Infow(ctx, "indexes ensured", "indexes", result.IndexesCreated, "duration", result.Duration)
	return r.SetMigrationStatus(ctx, indexesMigration, "completed", result)
}

func (r *migrationRepo) GetMigrationStatus(ctx context.Context, migrationName string) (*MigrationStatus, error) {
	collection := r.db.Database.Collection("migrations")

	var status MigrationStatus
	err := collection.FindOne(ctx, bson.M{"name": migrationName}).Decode(&status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("migration %s: %w", migrationName, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}

	return &status, nil
}

func (r *migrationRepo) SetMigrationStatus(ctx context.Context, migrationName string, status string, result *MigrationResult) error {
	collection := r.db.Database.Collection("migrations")

	now := time.Now()
	set := bson.M{
		"name":       migrationName,
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case "running":
		set["started_at"] = now
	case "completed", "failed":
		set["completed_at"] = now
		if result != nil {
			set["result"] = result
		}
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := collection.UpdateOne(ctx, bson.M{"name": migrationName}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to set migration status: %w", err)
	}

	return nil
}

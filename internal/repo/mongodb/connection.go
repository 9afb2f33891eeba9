package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	// Transactions needs a replica set; when false multi-document writes run unwrapped.
	Transactions bool
}

func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// WithTransaction runs fn in a multi-document transaction when enabled.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !db.Transactions {
		return fn(ctx)
	}
	sess, err := db.Client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

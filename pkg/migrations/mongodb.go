package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"notifier/internal/constants"
)

// EnsureMongoCollections creates the indexes the consumer relies on. Safe
// to run on every startup; existing indexes are left alone.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database) error {
	if err := ensureLockIndexes(ctx, db); err != nil {
		return err
	}
	return ensureDeviceIndexes(ctx, db)
}

func ensureLockIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.LockCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetName("idx_message_locks_type_message"),
		},
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "device_id", Value: 1}},
			Options: options.Index().SetName("idx_message_locks_type_device"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_message_locks_created_at"),
		},
		// Two consumers racing on the same redelivery both pass the gate
		// check; the unique index makes the second lock insert fail, which
		// stops the duplicate send.
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "message_id", Value: 1}, {Key: "device_id", Value: 1}},
			Options: options.Index().
				SetName("idx_message_locks_unique_scope").
				SetUnique(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create lock indexes: %w", err)
		}
	}

	return nil
}

func ensureDeviceIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.DeviceCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_devices_user"),
		},
		{
			Keys: bson.D{{Key: "registration_id", Value: 1}},
			Options: options.Index().
				SetName("idx_devices_registration").
				SetUnique(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create device indexes: %w", err)
		}
	}

	return nil
}

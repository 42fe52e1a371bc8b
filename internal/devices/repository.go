package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"notifier/internal/constants"
)

type Repository interface {
	FindByUser(ctx context.Context, userID string) ([]Device, error)
	Insert(ctx context.Context, device *Device) error
	DeleteByRegistrationID(ctx context.Context, registrationID string) error
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection(constants.DeviceCollection),
	}
}

func (r *MongoDBRepository) FindByUser(ctx context.Context, userID string) ([]Device, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}
	defer cursor.Close(ctx)

	var result []Device
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}

	return result, nil
}

func (r *MongoDBRepository) Insert(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	device.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, device); err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) DeleteByRegistrationID(ctx context.Context, registrationID string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"registration_id": registrationID}); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

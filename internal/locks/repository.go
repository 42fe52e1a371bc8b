package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"notifier/internal/constants"
)

// ErrAlreadyLocked reports that an unexpired lock with the same scope
// already exists. The caller lost the insert race and must not send.
var ErrAlreadyLocked = errors.New("lock already held")

// Repository is the minimal persistence contract the gate needs:
// find, insert, and delete-by-query. The store owns created_at.
type Repository interface {
	FindForEvaluation(ctx context.Context, messageID string, deviceIDs []string) ([]Lock, error)
	Find(ctx context.Context, q Query) ([]Lock, error)
	Insert(ctx context.Context, lock *Lock) error
	DeleteMany(ctx context.Context, q Query) (int64, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection(constants.LockCollection),
	}
}

// FindForEvaluation fetches every lock that can affect a fan-out: any
// global lock, a message lock for this notification, or a device lock
// for any of the target devices.
func (r *MongoDBRepository) FindForEvaluation(ctx context.Context, messageID string, deviceIDs []string) ([]Lock, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"type": LockTypeGlobal},
			bson.M{"type": LockTypeMessage, "message_id": messageID},
			bson.M{"type": LockTypeDevice, "device_id": bson.M{"$in": deviceIDs}},
		},
	}

	return r.find(ctx, filter)
}

func (r *MongoDBRepository) Find(ctx context.Context, q Query) ([]Lock, error) {
	return r.find(ctx, queryFilter(q))
}

func (r *MongoDBRepository) find(ctx context.Context, filter bson.M) ([]Lock, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find locks: %w", err)
	}
	defer cursor.Close(ctx)

	var result []Lock
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode locks: %w", err)
	}

	return result, nil
}

// Insert creates the lock. The collection carries a unique index on
// (type, message_id, device_id): when two consumers race on the same
// scope, exactly one insert wins. A conflict with an expired leftover
// lock evicts it and retries once.
func (r *MongoDBRepository) Insert(ctx context.Context, lock *Lock) error {
	if lock.ID == "" {
		lock.ID = uuid.New().String()
	}
	lock.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, lock)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert lock: %w", err)
	}

	evicted, evictErr := r.evictExpired(ctx, lock)
	if evictErr != nil {
		return fmt.Errorf("failed to check conflicting lock: %w", evictErr)
	}
	if !evicted {
		return ErrAlreadyLocked
	}

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyLocked
		}
		return fmt.Errorf("failed to insert lock: %w", err)
	}
	return nil
}

// evictExpired deletes the lock occupying this scope if it has lapsed.
func (r *MongoDBRepository) evictExpired(ctx context.Context, lock *Lock) (bool, error) {
	filter := bson.M{
		"type":       lock.Type,
		"message_id": scopeValue(lock.MessageID),
		"device_id":  scopeValue(lock.DeviceID),
	}

	var existing Lock
	if err := r.collection.FindOne(ctx, filter).Decode(&existing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return true, nil
		}
		return false, err
	}

	if !existing.Expired(time.Now()) {
		return false, nil
	}

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": existing.ID}); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteMany removes every lock matching the query. Callers are
// responsible for narrow queries; an empty query drops all locks.
func (r *MongoDBRepository) DeleteMany(ctx context.Context, q Query) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, queryFilter(q))
	if err != nil {
		return 0, fmt.Errorf("failed to delete locks: %w", err)
	}
	return result.DeletedCount, nil
}

// scopeValue matches an empty scope field whether it was stored empty or
// omitted entirely.
func scopeValue(v string) interface{} {
	if v == "" {
		return bson.M{"$in": bson.A{"", nil}}
	}
	return v
}

func queryFilter(q Query) bson.M {
	filter := bson.M{}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	if q.DeviceID != "" {
		filter["device_id"] = q.DeviceID
	}
	if q.MessageID != "" {
		filter["message_id"] = q.MessageID
	}
	return filter
}

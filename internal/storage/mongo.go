package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type kvDocument struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	Revision  int64      `bson:"rev"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func (d kvDocument) expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// MongoBackend stores one document per key. Update is optimistic: the write
// only matches the revision that was read.
type MongoBackend struct {
	collection *mongo.Collection
}

func NewMongoBackend(db *mongo.Database) *MongoBackend {
	return &MongoBackend{collection: db.Collection("kv")}
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *MongoBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	if doc.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return doc.Value, nil
}

func (m *MongoBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"expires_at": expiry(now, ttl),
			"updated_at": now,
		},
		"$inc": bson.M{"rev": 1},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (m *MongoBackend) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (m *MongoBackend) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	now := time.Now()

	var doc kvDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	exists := true
	if errors.Is(err, mongo.ErrNoDocuments) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("failed to get key: %w", err)
	}

	var current []byte
	if exists && !doc.expired(now) {
		current = doc.Value
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if !exists {
		_, err = m.collection.InsertOne(ctx, kvDocument{
			Key:       key,
			Value:     next,
			Revision:  1,
			ExpiresAt: expiry(now, ttl),
			UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert key: %w", err)
		}
		return nil
	}

	filter := bson.M{"_id": key, "rev": doc.Revision}
	update := bson.M{
		"$set": bson.M{
			"value":      next,
			"expires_at": expiry(now, ttl),
			"updated_at": now,
		},
		"$inc": bson.M{"rev": 1},
	}
	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.collection.Database().Client().Disconnect(ctx)
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)
	return &at
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
)

func setupTestMongo(t *testing.T) *MongoBackend {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, mongoContainer)
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, MigrateMongo(uri, "testdb"))
	// a second run is a no-op
	require.NoError(t, MigrateMongo(uri, "testdb"))

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	backend := NewMongoBackend(db)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestMongo_GetSetDelete(t *testing.T) {
	backend := setupTestMongo(t)
	ctx := context.Background()

	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.Set(ctx, "k", []byte("v"), 0))
	got, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, backend.Delete(ctx, "k"))
	_, err = backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongo_ExpiredIsMissing(t *testing.T) {
	backend := setupTestMongo(t)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "session", []byte("v"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, err := backend.Get(ctx, "session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongo_UpdateInsertsThenBumpsRevision(t *testing.T) {
	backend := setupTestMongo(t)
	ctx := context.Background()

	for i, want := range []string{"one", "two"} {
		err := backend.Update(ctx, "k", 0, func([]byte) ([]byte, error) { return []byte(want), nil })
		require.NoError(t, err, "update %d", i)
	}

	var doc kvDocument
	require.NoError(t, backend.collection.FindOne(ctx, bson.M{"_id": "k"}).Decode(&doc))
	assert.Equal(t, int64(2), doc.Revision)
	assert.Equal(t, []byte("two"), doc.Value)
}

func TestMongo_UpdateConflict(t *testing.T) {
	backend := setupTestMongo(t)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "k", []byte("1"), 0))

	err := backend.Update(ctx, "k", 0, func([]byte) ([]byte, error) {
		require.NoError(t, backend.Set(ctx, "k", []byte("other"), 0))
		return []byte("mine"), nil
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConnectMongoDB_PingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	db, err := ConnectMongoDB(ctx, "mongodb://127.0.0.1:1/?connect=direct", "testdb")
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping MongoDB")
}

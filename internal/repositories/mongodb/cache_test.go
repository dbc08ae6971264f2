package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
)

var errCacheMiss = errors.New("cache miss")

// mapCache is an in-process stand-in for the Redis cache.
type mapCache struct {
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := c.entries[key]
	if !ok {
		return errCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func TestCacheRefreshKeepsNewerSnapshot(t *testing.T) {
	repo := &requestRepository{cache: newMapCache()}
	id := primitive.NewObjectID()

	newer := &models.TowRequest{ID: id, Status: models.RequestStatusAccepted, Version: 3}
	older := &models.TowRequest{ID: id, Status: models.RequestStatusPending, Version: 2}

	repo.cacheRequest(context.Background(), newer)
	repo.cacheRequest(context.Background(), older)

	cached := repo.getRequestFromCache(context.Background(), id.Hex())
	if cached == nil {
		t.Fatal("Expected a cached snapshot")
	}
	if cached.Version != 3 || cached.Status != models.RequestStatusAccepted {
		t.Fatalf("Older snapshot overwrote the newer one: version %d, status %s", cached.Version, cached.Status)
	}
}

func TestCacheRefreshAdvancesVersion(t *testing.T) {
	repo := &requestRepository{cache: newMapCache()}
	id := primitive.NewObjectID()

	repo.cacheRequest(context.Background(), &models.TowRequest{ID: id, Status: models.RequestStatusPending, Version: 2})
	repo.cacheRequest(context.Background(), &models.TowRequest{ID: id, Status: models.RequestStatusAccepted, Version: 3})

	cached := repo.getRequestFromCache(context.Background(), id.Hex())
	if cached == nil || cached.Version != 3 {
		t.Fatal("Newer snapshot should replace the older one")
	}
}

func TestCacheDropsTerminalSnapshot(t *testing.T) {
	repo := &requestRepository{cache: newMapCache()}
	id := primitive.NewObjectID()

	repo.cacheRequest(context.Background(), &models.TowRequest{ID: id, Status: models.RequestStatusPending, Version: 1})
	repo.cacheRequest(context.Background(), &models.TowRequest{ID: id, Status: models.RequestStatusCancelled, Version: 2})

	if repo.getRequestFromCache(context.Background(), id.Hex()) != nil {
		t.Fatal("Terminal snapshot should evict the cached entry")
	}
}

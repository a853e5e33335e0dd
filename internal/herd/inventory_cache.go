package herd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InventoryCache caches the last successful Inventorize() partition in
// Redis so a freshly started scheduler doesn't have to wait a full
// inventory sweep before it can make a first admission decision, and so
// multiple processes reading the fleet status (the thin API, a CLI) see
// a consistent view without each dialing every observer themselves.
// Grounded on the teacher's RedisStore: a small preloaded-key JSON blob
// with a TTL, not a general-purpose store.
type InventoryCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

type inventorySnapshot struct {
	Online    []string  `json:"online"`
	Offline   []string  `json:"offline"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInventoryCache returns a cache bound to client. ttl controls how
// long a snapshot is trusted before a reader should fall back to a live
// Inventorize() call.
func NewInventoryCache(client *redis.Client, ttl time.Duration) *InventoryCache {
	return &InventoryCache{client: client, key: "shepherd:herd:inventory", ttl: ttl}
}

// Store persists the given partition.
func (c *InventoryCache) Store(ctx context.Context, online, offline []string) error {
	snap := inventorySnapshot{Online: online, Offline: offline, UpdatedAt: time.Now()}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("herd: marshaling inventory snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Load returns the last stored partition, or (nil, nil, false, nil) if
// none is cached or it has expired.
func (c *InventoryCache) Load(ctx context.Context) (online, offline []string, ok bool, err error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("herd: reading inventory snapshot: %w", err)
	}
	var snap inventorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, false, fmt.Errorf("herd: unmarshaling inventory snapshot: %w", err)
	}
	return snap.Online, snap.Offline, true, nil
}

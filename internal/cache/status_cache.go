package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang/snappy"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statusKeyPrefix = "ambassador:status:"

// StatusCache holds the authoritative affiliate count per graph for a short
// time so badge polling does not hit the database on every request.
type StatusCache interface {
	// GetMany returns the cached counts for the ids it knows about.
	GetMany(ctx context.Context, graphIDs []string) (map[string]int64, error)
	SetMany(ctx context.Context, counts map[string]int64, ttl time.Duration) error
	Invalidate(ctx context.Context, graphIDs ...string) error
}

type statusEntry struct {
	Count    int64     `json:"count"`
	CachedAt time.Time `json:"cachedAt"`
}

// NewStatusCache uses redis when a client is configured and falls back to a
// per-process cache otherwise.
func NewStatusCache(client *redis.Client, log *zap.Logger) StatusCache {
	if client == nil {
		return &memoryStatusCache{entries: NewTTLCache[string, int64]()}
	}
	return &redisStatusCache{client: client, log: log.Named("cache.status")}
}

type redisStatusCache struct {
	client *redis.Client
	log    *zap.Logger
}

func (c *redisStatusCache) GetMany(ctx context.Context, graphIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(graphIDs))
	if len(graphIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(graphIDs))
	for i, id := range graphIDs {
		keys[i] = statusKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		entry, err := decodeStatus([]byte(str))
		if err != nil {
			// A corrupt entry is treated as a miss and overwritten on the next set.
			c.log.Warn("dropping unreadable status cache entry", zap.String("graph_id", graphIDs[i]), zap.Error(err))
			continue
		}
		out[graphIDs[i]] = entry.Count
	}
	return out, nil
}

func (c *redisStatusCache) SetMany(ctx context.Context, counts map[string]int64, ttl time.Duration) error {
	if len(counts) == 0 || ttl <= 0 {
		return nil
	}
	now := time.Now().UTC()
	pipe := c.client.Pipeline()
	for id, count := range counts {
		payload, err := encodeStatus(statusEntry{Count: count, CachedAt: now})
		if err != nil {
			return err
		}
		pipe.Set(ctx, statusKey(id), payload, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisStatusCache) Invalidate(ctx context.Context, graphIDs ...string) error {
	if len(graphIDs) == 0 {
		return nil
	}
	keys := make([]string, len(graphIDs))
	for i, id := range graphIDs {
		keys[i] = statusKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

type memoryStatusCache struct {
	entries Cache[string, int64]
}

func (c *memoryStatusCache) GetMany(_ context.Context, graphIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(graphIDs))
	for _, id := range graphIDs {
		if count, ok := c.entries.Get(id); ok {
			out[id] = count
		}
	}
	return out, nil
}

func (c *memoryStatusCache) SetMany(_ context.Context, counts map[string]int64, ttl time.Duration) error {
	for id, count := range counts {
		c.entries.Set(id, count, ttl)
	}
	return nil
}

func (c *memoryStatusCache) Invalidate(_ context.Context, graphIDs ...string) error {
	for _, id := range graphIDs {
		c.entries.Delete(id)
	}
	return nil
}

func statusKey(graphID string) string {
	return statusKeyPrefix + strings.TrimSpace(graphID)
}

func encodeStatus(entry statusEntry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, payload), nil
}

func decodeStatus(raw []byte) (statusEntry, error) {
	payload, err := snappy.Decode(nil, raw)
	if err != nil {
		return statusEntry{}, fmt.Errorf("snappy decode: %w", err)
	}
	var entry statusEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return statusEntry{}, err
	}
	return entry, nil
}

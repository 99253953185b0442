package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roamly/progression-engine/internal/models"
)

// Key patterns.
const (
	// keyLeaderboard is the sorted set mapping user ID to points.
	keyLeaderboard = "progression:leaderboard:points"

	// keySnapshotPrefix prefixes per-user cached snapshots.
	keySnapshotPrefix = "progression:snapshot:"
)

// SnapshotKey returns the cache key for a user's snapshot.
func SnapshotKey(userID uint) string {
	return keySnapshotPrefix + strconv.FormatUint(uint64(userID), 10)
}

// PutSnapshot caches a user's snapshot as JSON with the given TTL and
// updates their score in the leaderboard sorted set.
func (c *Cache) PutSnapshot(ctx context.Context, snapshot *models.UserProgression, ttl time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, SnapshotKey(snapshot.UserID), payload, ttl)
	pipe.ZAdd(ctx, keyLeaderboard, redis.Z{
		Score:  float64(snapshot.Points),
		Member: strconv.FormatUint(uint64(snapshot.UserID), 10),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot for a user, or nil on a miss.
func (c *Cache) GetSnapshot(ctx context.Context, userID uint) (*models.UserProgression, error) {
	payload, err := c.client.Get(ctx, SnapshotKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached snapshot: %w", err)
	}

	var snapshot models.UserProgression
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		_ = c.client.Del(ctx, SnapshotKey(userID)).Err()
		return nil, nil
	}
	return &snapshot, nil
}

// InvalidateSnapshot drops a user's cached snapshot.
func (c *Cache) InvalidateSnapshot(ctx context.Context, userID uint) error {
	return c.client.Del(ctx, SnapshotKey(userID)).Err()
}

// TopUserIDs returns the highest-scoring user IDs from the leaderboard
// sorted set, best first. Returns nil when the set is empty (cold cache).
func (c *Cache) TopUserIDs(ctx context.Context, limit int) ([]uint, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := c.client.ZRevRange(ctx, keyLeaderboard, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// RebuildLeaderboard replaces the leaderboard sorted set with the given
// snapshots. Used when serving a miss from the database.
func (c *Cache) RebuildLeaderboard(ctx context.Context, snapshots []models.UserProgression) error {
	if len(snapshots) == 0 {
		return nil
	}
	entries := make([]redis.Z, 0, len(snapshots))
	for _, s := range snapshots {
		entries = append(entries, redis.Z{
			Score:  float64(s.Points),
			Member: strconv.FormatUint(uint64(s.UserID), 10),
		})
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, keyLeaderboard)
	pipe.ZAdd(ctx, keyLeaderboard, entries...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineUsersKey = "online_users"

func statusKey(username string) string {
	return fmt.Sprintf("user:%s:status", username)
}

// RedisService mirrors user status into redis: a set of online usernames
// and a status hash per user.
type RedisService struct {
	client    *redis.Client
	statusTTL time.Duration
}

func NewRedisService(client *redis.Client, statusTTL time.Duration) *RedisService {
	if statusTTL <= 0 {
		statusTTL = 24 * time.Hour
	}
	return &RedisService{
		client:    client,
		statusTTL: statusTTL,
	}
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, username string, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, onlineUsersKey, username)
	pipe.HSet(ctx, statusKey(username), map[string]interface{}{
		"status":     "online",
		"last_seen":  at.Unix(),
		"updated_at": at.Unix(),
	})
	// Online status has no expiry; it is cleared on the offline transition.
	pipe.Persist(ctx, statusKey(username))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set %s online: %w", username, err)
	}
	slog.Debug("User set to online", "username", username)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, username string, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.SRem(ctx, onlineUsersKey, username)
	pipe.HSet(ctx, statusKey(username), map[string]interface{}{
		"status":     "offline",
		"last_seen":  at.Unix(),
		"updated_at": at.Unix(),
	})
	pipe.Expire(ctx, statusKey(username), r.statusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set %s offline: %w", username, err)
	}
	slog.Debug("User set to offline", "username", username)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, username string) (bool, error) {
	return r.client.SIsMember(ctx, onlineUsersKey, username).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, onlineUsersKey).Result()
}

// LastSeen returns the last recorded transition time of username. ok is
// false when no status is stored.
func (r *RedisService) LastSeen(ctx context.Context, username string) (at time.Time, ok bool, err error) {
	raw, err := r.client.HGet(ctx, statusKey(username), "last_seen").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last_seen of %s: %w", username, err)
	}
	return time.Unix(secs, 0).UTC(), true, nil
}

// Reset marks every user recorded online as offline. The mirror starts from
// an empty process-local registry, so entries left by a previous run are
// stale.
func (r *RedisService) Reset(ctx context.Context, at time.Time) error {
	users, err := r.GetOnlineUsers(ctx)
	if err != nil {
		return err
	}
	for _, username := range users {
		if err := r.SetUserOffline(ctx, username, at); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit on key and reports whether fewer than limit
// hits were recorded within window before it. Hits are kept in a sorted set
// scored by time.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(limit), nil
}

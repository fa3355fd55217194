package external

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlockStore resolves the set of UserIDs a user has blocked. It is consulted
// once, at Enqueue time (spec section 4.B / 7): on failure the caller must
// enqueue the session without block filtering rather than refuse service —
// BlockStore unavailability fails open.
type BlockStore interface {
	BlockedBy(ctx context.Context, userID string) (map[string]struct{}, error)
}

// blockSetPrefix is the Redis key prefix for a user's block-list set,
// grounded on ban.Store's BanPrefix/ReportsPrefix key-namespacing idiom.
const blockSetPrefix = "blocked:"

// blockListTimeout bounds a single BlockedBy call so a slow or wedged Redis
// never stalls the Enqueue path for longer than this.
const blockListTimeout = 500 * time.Millisecond

// RedisBlockStore is the reference BlockStore, grounded on
// internal/session/store.go and internal/ban/store.go's Redis client
// construction and key-per-entity idiom, using a Redis set instead of a
// hash or string since block relations are an unordered membership set.
type RedisBlockStore struct {
	client *redis.Client
}

// NewRedisBlockStore connects to Redis and verifies the connection, same
// as session.NewStore's ping-on-construct pattern.
func NewRedisBlockStore(addr string) (*RedisBlockStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("blocklist: redis connection failed: %w", err)
	}
	return &RedisBlockStore{client: client}, nil
}

// BlockedBy returns the set of UserIDs userID has blocked.
func (s *RedisBlockStore) BlockedBy(ctx context.Context, userID string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, blockListTimeout)
	defer cancel()

	members, err := s.client.SMembers(ctx, blockSetPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("blocklist: smembers: %w", err)
	}

	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set, nil
}

// Block adds blockedUserID to userID's block-list, persisting it with no
// expiry — a block is a deliberate, durable user action, unlike a ban.
func (s *RedisBlockStore) Block(ctx context.Context, userID, blockedUserID string) error {
	return s.client.SAdd(ctx, blockSetPrefix+userID, blockedUserID).Err()
}

// Unblock removes blockedUserID from userID's block-list.
func (s *RedisBlockStore) Unblock(ctx context.Context, userID, blockedUserID string) error {
	return s.client.SRem(ctx, blockSetPrefix+userID, blockedUserID).Err()
}

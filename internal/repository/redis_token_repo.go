package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenRepo implements domain.TokenRepository using Redis.
type RedisTokenRepo struct {
	client redis.Cmdable
}

// NewRedisTokenRepo creates a new repository instance.
func NewRedisTokenRepo(client redis.Cmdable) *RedisTokenRepo {
	return &RedisTokenRepo{client: client}
}

func revokedKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

// Revoke denylists a token id until its natural expiry.
func (r *RedisTokenRepo) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token in redis: %w", err)
	}
	return nil
}

func (r *RedisTokenRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// MemoryTokenRepo is the single-process denylist used when Redis is not configured.
type MemoryTokenRepo struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{revoked: make(map[string]time.Time), now: time.Now}
}

func (r *MemoryTokenRepo) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, id)
		}
	}
	r.revoked[jti] = now.Add(ttl)
	return nil
}

func (r *MemoryTokenRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.revoked[jti]
	return ok && r.now().Before(exp), nil
}

package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed ratelimit.lua
var rateLimitLua string

var rateLimitScript = redis.NewScript(rateLimitLua)

// Rule is one fixed-window counter.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Allower is the shape of echo's middleware.RateLimiterStore.
type Allower interface {
	Allow(identifier string) (bool, error)
}

// RedisRateLimitStore counts requests per identifier across all instances.
// When Redis fails it defers to the fallback store, so an outage degrades to
// per-process limiting rather than rejecting every request.
type RedisRateLimitStore struct {
	client   redis.Scripter
	prefix   string
	limit    int
	window   time.Duration
	fallback Allower
	log      *zap.Logger
	timeout  time.Duration
}

func NewRedisRateLimitStore(client redis.Scripter, prefix string, limit int, window time.Duration, fallback Allower, log *zap.Logger) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client:   client,
		prefix:   prefix,
		limit:    limit,
		window:   window,
		fallback: fallback,
		log:      log,
		timeout:  500 * time.Millisecond,
	}
}

func (s *RedisRateLimitStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ok, err := CheckAtomic(ctx, s.client, []Rule{{
		Key:    fmt.Sprintf("%s:%s", s.prefix, identifier),
		Limit:  s.limit,
		Window: s.window,
	}})
	if err != nil {
		s.log.Warn("rate limit store unavailable, using in-process limiter", zap.Error(err))
		return s.fallback.Allow(identifier)
	}
	return ok, nil
}

// CheckAtomic evaluates every rule in one round trip.
func CheckAtomic(ctx context.Context, rdb redis.Scripter, rules []Rule) (bool, error) {
	keys := make([]string, 0, len(rules))
	args := make([]interface{}, 0, len(rules)*2)

	for _, r := range rules {
		keys = append(keys, r.Key)
		args = append(args, r.Limit, int(r.Window.Seconds()))
	}

	res, err := rateLimitScript.Run(ctx, rdb, keys, args...).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

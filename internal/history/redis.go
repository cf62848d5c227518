package history

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/retry"
)

const (
	redisKeyPrefix = "history:"
	fieldCount     = "count"
	fieldTotal     = "total"

	connectAttempts  = 5
	connectBaseDelay = 250 * time.Millisecond
)

// RedisProvider keeps per-customer count and total in a Redis hash. Each
// write refreshes the key's TTL, so idle customers age out.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProvider creates a Redis-backed history backend.
func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server, retrying with
// exponential backoff while it comes up. Authentication errors are not
// retried.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	attempts := 0
	policy := retry.Policy{
		Attempts:  connectAttempts,
		BaseDelay: connectBaseDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("redis not ready, retrying",
				"addr", opts.Addr,
				"attempt", attempt,
				"retry_in", delay,
				"error", err,
			)
		},
	}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attempts++
		err := client.Ping(ctx).Err()
		if err != nil && isAuthError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable after %d attempts: %w", attempts, err)
	}
	logger.Info("connected to redis", "addr", opts.Addr, "attempts", attempts)
	return client, nil
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS")
}

func redisKey(customerID string) string {
	return redisKeyPrefix + customerID
}

func (p *RedisProvider) Lookup(ctx context.Context, customerID string) (features.History, bool, error) {
	vals, err := p.client.HGetAll(ctx, redisKey(customerID)).Result()
	if err != nil {
		return features.History{}, false, fmt.Errorf("redis history lookup: %w", err)
	}
	if len(vals) == 0 {
		return features.History{}, false, nil
	}

	count, err := strconv.Atoi(vals[fieldCount])
	if err != nil || count <= 0 {
		return features.History{}, false, nil
	}
	total, err := strconv.ParseFloat(vals[fieldTotal], 64)
	if err != nil {
		return features.History{}, false, fmt.Errorf("redis history %s total %q: %w", customerID, vals[fieldTotal], err)
	}
	return features.History{
		Frequency:     count,
		AverageAmount: total / float64(count),
	}, true, nil
}

func (p *RedisProvider) Record(ctx context.Context, customerID string, amount float64) error {
	if customerID == "" {
		return nil
	}
	key := redisKey(customerID)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldCount, 1)
		pipe.HIncrByFloat(ctx, key, fieldTotal, amount)
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis history record: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

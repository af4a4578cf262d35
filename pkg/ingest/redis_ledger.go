package ingest

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisLedger shares the ledger between gateway replicas with SET NX EX.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLedger creates a ledger over client. Keys are stored as prefix+key.
func NewRedisLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}

	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisLedgerFromURL connects to a redis:// URL and checks the connection.
func NewRedisLedgerFromURL(ctx context.Context, rawURL string, ttl time.Duration) (*RedisLedger, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisLedger(client, "packflow:events:", ttl), nil
}

func (l *RedisLedger) Claim(ctx context.Context, key string) (bool, error) {
	claimed, err := l.client.SetNX(ctx, l.prefix+key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", key, err)
	}

	return claimed, nil
}

func (l *RedisLedger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", key, err)
	}

	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

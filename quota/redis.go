package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ytproxy/retry"
)

// Redis key layout: <prefix>usage:<index>:<dayKey> -> JSON Usage record.
// Records expire after two days; superseded days age out on their own.
const (
	usageKeyspace  = "usage:"
	usageRecordTTL = 48 * time.Hour
)

// RedisStore persists usage records in Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string
	// Password is optional.
	Password string
	// DB selects the Redis logical database.
	DB int
	// KeyPrefix namespaces all keys written by this store.
	KeyPrefix string
	// DialTimeout bounds the startup connectivity check.
	DialTimeout time.Duration
	// ConnectRetry controls retries of the startup PING. Docker setups
	// often start the proxy before Redis accepts connections.
	ConnectRetry retry.Config
}

// DefaultRedisConfig returns sensible defaults for a local or
// docker-compose Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "redis:6379",
		KeyPrefix:   "youtube_api:",
		DialTimeout: 3 * time.Second,
		ConnectRetry: retry.Config{
			MaxRetries:     5,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
	}
}

// NewRedisStore connects to Redis and verifies the connection with a
// retried PING. It returns an error when the backend stays unreachable;
// callers substitute a MemoryStore and run degraded.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.DialTimeout,
	})

	err := retry.Do(ctx, cfg.ConnectRetry, nil, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	slog.Info("quota: redis store connected", slog.String("addr", cfg.Addr))
	return &RedisStore{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// LoadAll scans the usage keyspace and returns every record it can
// parse. When a key has records for more than one day, the newest day
// wins; the ledger re-checks staleness anyway.
func (s *RedisStore) LoadAll(ctx context.Context) (map[int]Usage, error) {
	out := map[int]Usage{}

	var cursor uint64
	pattern := s.prefix + usageKeyspace + "*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 64).Result()
		if err != nil {
			return nil, fmt.Errorf("scan usage records: %w", err)
		}
		for _, key := range keys {
			index, ok := s.parseIndex(key)
			if !ok {
				continue
			}
			data, err := s.rdb.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var u Usage
			if err := json.Unmarshal(data, &u); err != nil {
				slog.Warn("quota: corrupt usage record skipped",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			if prev, exists := out[index]; !exists || u.DayKey > prev.DayKey {
				out[index] = u
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

// Save writes one usage record under its own day key.
func (s *RedisStore) Save(ctx context.Context, index int, u Usage) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}
	key := s.usageKey(index, u.DayKey)
	if err := s.rdb.Set(ctx, key, data, usageRecordTTL).Err(); err != nil {
		return fmt.Errorf("save usage record %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) usageKey(index int, dayKey string) string {
	return fmt.Sprintf("%s%s%d:%s", s.prefix, usageKeyspace, index, dayKey)
}

// parseIndex extracts the pool index from "<prefix>usage:<index>:<day>".
func (s *RedisStore) parseIndex(key string) (int, bool) {
	rest := strings.TrimPrefix(key, s.prefix+usageKeyspace)
	if rest == key {
		return 0, false
	}
	head, _, found := strings.Cut(rest, ":")
	if !found {
		return 0, false
	}
	index, err := strconv.Atoi(head)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

package objstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store and Locker on Redis strings.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	scanCount int64
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(opts ...RedisOption) (*RedisStore, error) {
	cfg := &RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		Prefix:       "dualsignal",
		ScanCount:    500,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := NewRedisStoreFromClient(client, cfg.Prefix)
	if cfg.ScanCount > 0 {
		s.scanCount = cfg.ScanCount
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, scanCount: 500}
}

// Client exposes the connection pool for components sharing it, such as the response cache.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	if err := s.client.Set(ctx, s.wrapKey(key), body, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	match := s.wrapKey(prefix) + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, s.scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		for _, k := range batch {
			keys = append(keys, s.unwrapKey(k))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)
	return dedupSorted(keys), nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// TryLock takes name with SETNX. Release only deletes the key while it still holds our token.
func (s *RedisStore) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := s.wrapKey(name)
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		err := releaseScript.Run(ctx, s.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis unlock %s: %w", name, err)
		}
		return nil
	}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) wrapKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) unwrapKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+":")
}

// SCAN may return a key more than once.
func dedupSorted(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

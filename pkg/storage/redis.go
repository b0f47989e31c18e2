package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the artifact is stored under when none is
// configured.
const DefaultRedisKey = "markcast:model:student_performance"

// RedisStore keeps the artifact in Redis so several predictor instances can
// share one trained model. The artifact has no expiry.
type RedisStore struct {
	client *redis.Client
	key    string
	mu     sync.RWMutex
}

// NewRedisStore creates a Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - key: artifact key (empty uses DefaultRedisKey)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, key string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if key == "" {
		key = DefaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		key:    key,
	}, nil
}

// Key returns the artifact key.
func (r *RedisStore) Key() string {
	return r.key
}

// Put overwrites the artifact.
func (r *RedisStore) Put(ctx context.Context, a Artifact) error {
	data, err := encode(a)
	if err != nil {
		return err
	}

	client, err := r.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store artifact in redis: %w", err)
	}
	return nil
}

// Get retrieves the artifact.
//
// Returns:
//   - artifact: the stored artifact (zero value if not found)
//   - found: true if the key exists
//   - error: connection failures, or *ModelUnavailableError for undecodable data
func (r *RedisStore) Get(ctx context.Context) (Artifact, bool, error) {
	client, err := r.conn()
	if err != nil {
		return Artifact{}, false, err
	}

	data, err := client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to get artifact from redis: %w", err)
	}

	a, err := decode("redis:"+r.key, data)
	if err != nil {
		return Artifact{}, false, err
	}
	return a, true, nil
}

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errors.New("redis store is closed")
	}
	return r.client, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

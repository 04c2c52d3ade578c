// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jason-s-yu/tablesync/internal/auth"
	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for sync records.
var DefaultQueueName = "tablesync_records"

// DefaultSessionKey is the Redis key holding the local session.
var DefaultSessionKey = "tablesync:session"

// ConnectAddr builds a Redis client for addr and pings it.
func ConnectAddr(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// SessionStore keeps the local session in a single Redis key so several
// headless clients on one host can share a login.
type SessionStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewSessionStore returns a store under key. A zero ttl keeps the key forever.
func NewSessionStore(rdb *redis.Client, key string, ttl time.Duration) *SessionStore {
	if key == "" {
		key = DefaultSessionKey
	}
	return &SessionStore{rdb: rdb, key: key, ttl: ttl}
}

var _ auth.Store = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context) (*auth.Credentials, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to GET session %q: %w", s.key, err)
	}
	var c auth.Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if c.UserID == "" {
		return nil, auth.ErrNoSession
	}
	return &c, nil
}

func (s *SessionStore) Save(ctx context.Context, c *auth.Credentials) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to SET session %q: %w", s.key, err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

// Recorder pushes sync records onto a Redis list for an offline historian.
type Recorder struct {
	rdb   *redis.Client
	queue string
}

// NewRecorder returns a recorder pushing to queue, or to HISTORIAN_QUEUE_NAME /
// DefaultQueueName when queue is empty.
func NewRecorder(rdb *redis.Client, queue string) *Recorder {
	if queue == "" {
		queue = getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName)
	}
	return &Recorder{rdb: rdb, queue: queue}
}

// Record serializes the given record to JSON, then pushes it to the Redis queue.
// This does not block the calling logic (other than a quick network send).
func (r *Recorder) Record(ctx context.Context, record models.SyncRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal SyncRecord: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", r.queue, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

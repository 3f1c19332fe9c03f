// Package presence keeps per-user online status in Redis so status
// survives across the HTTP and websocket surfaces and expires on its
// own when a process dies without cleaning up.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 2 * time.Minute

type Status struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

type Store interface {
	MarkOnline(ctx context.Context, userID string) error
	// Refresh extends the online TTL; called from the ws ping loop.
	Refresh(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (Status, error)
}

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix, ttl: defaultTTL}
}

func (s *redisStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *redisStore) MarkOnline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(Status{Online: true, LastSeen: time.Now().UTC()})
	return s.client.Set(ctx, s.key(userID), b, s.ttl).Err()
}

func (s *redisStore) Refresh(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, s.key(userID), s.ttl).Err()
}

func (s *redisStore) MarkOffline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(Status{Online: false, LastSeen: time.Now().UTC()})
	// No TTL: last-seen stays readable until the user comes back.
	return s.client.Set(ctx, s.key(userID), b, 0).Err()
}

func (s *redisStore) Get(ctx context.Context, userID string) (Status, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Status{}, nil
		}
		return Status{}, err
	}
	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Nop is used when Redis is not configured.
type Nop struct{}

func (Nop) MarkOnline(context.Context, string) error  { return nil }
func (Nop) Refresh(context.Context, string) error     { return nil }
func (Nop) MarkOffline(context.Context, string) error { return nil }
func (Nop) Get(context.Context, string) (Status, error) {
	return Status{}, nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix namespaces session keys in the shared Redis instance.
const sessionKeyPrefix = "acad:sess:"

// RedisStore implements Store on a Redis instance. Each session is stored
// as JSON with the key's native TTL set to the remaining idle window
// (capped by the absolute deadline), so Redis itself garbage-collects
// idle-expired sessions.
type RedisStore struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, cfg Config) *RedisStore {
	return &RedisStore{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Create persists a new session.
func (s *RedisStore) Create(ctx context.Context, account string, cookies map[string]string) (*Session, error) {
	now := s.now()
	sess, err := newSession(account, cookies, s.cfg, now)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, sess, now); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID, extending its idle deadline and the
// backing key's TTL. Missing, corrupt and absolutely-expired entries are
// reported as absent; corrupt and expired entries are deleted.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // Store contract: nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		slog.Warn("deleting corrupt session record", "session_id", id, "error", err)
		_ = s.client.Del(ctx, sessionKeyPrefix+id).Err()
		return nil, nil //nolint:nilnil // corrupt entries count as absent
	}

	now := s.now()
	if sess.Expired(now) {
		_ = s.client.Del(ctx, sessionKeyPrefix+id).Err()
		return nil, nil //nolint:nilnil // Store contract: nil,nil for expired
	}

	bumpIdle(&sess, s.cfg, now)
	if err := s.persist(ctx, &sess, now); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// persist writes the session with TTL set to its remaining lifetime.
func (s *RedisStore) persist(ctx context.Context, sess *Session, now time.Time) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	ttl := sess.remaining(now)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.ID)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+sess.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

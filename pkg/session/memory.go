package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map guarded by a single
// mutex. Suitable for single-process deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create persists a new session.
func (s *MemoryStore) Create(_ context.Context, account string, cookies map[string]string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := newSession(account, cookies, s.cfg, s.now())
	if err != nil {
		return nil, err
	}
	s.sessions[sess.ID] = sess
	return copySession(sess), nil
}

// Get retrieves a session by ID, extending its idle deadline. Expired
// sessions are removed and reported as absent.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store contract: nil,nil for not-found
	}

	now := s.now()
	if sess.Expired(now) {
		delete(s.sessions, id)
		return nil, nil //nolint:nilnil // Store contract: nil,nil for expired
	}

	bumpIdle(sess, s.cfg, now)
	return copySession(sess), nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func copySession(sess *Session) *Session {
	dup := *sess
	dup.Cookies = make(map[string]string, len(sess.Cookies))
	for k, v := range sess.Cookies {
		dup.Cookies[k] = v
	}
	return &dup
}

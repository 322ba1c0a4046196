// Package session manages authenticated portal sessions. A session binds
// an opaque, unguessable identifier to the cookie set obtained from the
// portal at login, and carries two independent expiry clocks: an absolute
// deadline fixed at creation and an idle deadline extended on every
// successful read.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// sessionIDBytes is the entropy of generated session identifiers.
const sessionIDBytes = 32

// Session is one authenticated portal session.
type Session struct {
	// ID is the opaque session identifier handed to callers.
	ID string `json:"id"`

	// Account is the portal account that authenticated this session.
	Account string `json:"account"`

	// Cookies is the portal cookie set captured at login.
	Cookies map[string]string `json:"cookies"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"createdAt"`

	// AbsoluteExpiresAt is the hard deadline, fixed at creation and
	// never extended.
	AbsoluteExpiresAt time.Time `json:"absoluteExpiresAt"`

	// IdleExpiresAt is the sliding deadline, extended on each read.
	IdleExpiresAt time.Time `json:"idleExpiresAt"`
}

// Expired reports whether either expiry clock has run out.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.AbsoluteExpiresAt) || !now.Before(s.IdleExpiresAt)
}

// remaining returns the time left before the nearer of the two deadlines.
func (s *Session) remaining(now time.Time) time.Duration {
	deadline := s.IdleExpiresAt
	if s.AbsoluteExpiresAt.Before(deadline) {
		deadline = s.AbsoluteExpiresAt
	}
	return deadline.Sub(now)
}

// Config configures session lifetimes.
type Config struct {
	// AbsoluteTTL is the hard session lifetime.
	AbsoluteTTL time.Duration

	// IdleTTL is the sliding window extended on each read.
	IdleTTL time.Duration
}

// Store defines the interface for session persistence.
type Store interface {
	// Create persists a new session for the given account and cookies
	// and returns it with a freshly generated identifier.
	Create(ctx context.Context, account string, cookies map[string]string) (*Session, error)

	// Get retrieves a session by ID, extending its idle deadline.
	// Returns nil, nil if the session is missing or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// newSessionID generates an unguessable session identifier.
func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// newSession builds a session with both expiry clocks set from cfg.
func newSession(account string, cookies map[string]string, cfg Config, now time.Time) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	copied := make(map[string]string, len(cookies))
	for k, v := range cookies {
		copied[k] = v
	}

	return &Session{
		ID:                id,
		Account:           account,
		Cookies:           copied,
		CreatedAt:         now,
		AbsoluteExpiresAt: now.Add(cfg.AbsoluteTTL),
		IdleExpiresAt:     now.Add(cfg.IdleTTL),
	}, nil
}

// bumpIdle extends the idle deadline, capped by the absolute deadline.
func bumpIdle(s *Session, cfg Config, now time.Time) {
	idle := now.Add(cfg.IdleTTL)
	if idle.After(s.AbsoluteExpiresAt) {
		idle = s.AbsoluteExpiresAt
	}
	s.IdleExpiresAt = idle
}

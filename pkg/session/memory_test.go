package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AbsoluteTTL: 8 * time.Hour,
		IdleTTL:     time.Hour,
	}
}

func TestMemoryStoreCreate(t *testing.T) {
	store := NewMemoryStore(testConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	sess, err := store.Create(context.Background(), "2021001", map[string]string{"JSESSIONID": "abc"})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "2021001", sess.Account)
	assert.Equal(t, base.Add(8*time.Hour), sess.AbsoluteExpiresAt)
	assert.Equal(t, base.Add(time.Hour), sess.IdleExpiresAt)

	other, err := store.Create(context.Background(), "2021001", nil)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID, "identifiers must be unique")
}

func TestMemoryStoreGetBumpsIdle(t *testing.T) {
	store := NewMemoryStore(testConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	sess, err := store.Create(context.Background(), "2021001", nil)
	require.NoError(t, err)

	// 30 minutes later the read slides the idle deadline forward.
	now = base.Add(30 * time.Minute)
	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, now.Add(time.Hour), got.IdleExpiresAt)
	// The absolute deadline never moves.
	assert.Equal(t, base.Add(8*time.Hour), got.AbsoluteExpiresAt)
}

func TestMemoryStoreIdleExpiry(t *testing.T) {
	store := NewMemoryStore(testConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	sess, err := store.Create(context.Background(), "2021001", nil)
	require.NoError(t, err)

	now = base.Add(61 * time.Minute)
	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "idle-expired session must read as absent")

	// And it is gone for good, even for a later in-window read.
	now = base.Add(62 * time.Minute)
	got, err = store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreAbsoluteExpiryCapsIdle(t *testing.T) {
	// Constant activity keeps the idle clock alive, but never past the
	// absolute deadline.
	store := NewMemoryStore(testConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	sess, err := store.Create(context.Background(), "2021001", nil)
	require.NoError(t, err)

	for i := 1; i <= 15; i++ {
		now = base.Add(time.Duration(i) * 30 * time.Minute)
		got, err := store.Get(context.Background(), sess.ID)
		require.NoError(t, err)
		require.NotNil(t, got, "read %d within both windows should succeed", i)
		assert.False(t, got.IdleExpiresAt.After(got.AbsoluteExpiresAt))
	}

	// Past the absolute deadline the session is dead regardless of activity.
	now = base.Add(8*time.Hour + time.Second)
	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(testConfig())

	sess, err := store.Create(context.Background(), "2021001", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), sess.ID))
	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an unknown session is a no-op.
	assert.NoError(t, store.Delete(context.Background(), "no-such"))
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(testConfig())

	sess, err := store.Create(context.Background(), "2021001", map[string]string{"JSESSIONID": "abc"})
	require.NoError(t, err)

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	got.Cookies["JSESSIONID"] = "mutated"

	again, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", again.Cookies["JSESSIONID"])
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &Session{
		AbsoluteExpiresAt: now.Add(time.Hour),
		IdleExpiresAt:     now.Add(time.Minute),
	}

	assert.False(t, sess.Expired(now))
	assert.True(t, sess.Expired(now.Add(time.Minute)), "deadline instant counts as expired")
	assert.True(t, sess.Expired(now.Add(2*time.Hour)))
}

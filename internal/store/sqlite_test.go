// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers schema creation, browser session lifecycle and the response cache

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err, "schema and migrations are idempotent")
	require.NoError(t, second.Close())
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.PutCached(ctx, "k", []byte("v"), time.Minute))
	got, err := store.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func testSession(id string, now time.Time) *BrowserSession {
	return &BrowserSession{
		ID:           id,
		UserID:       "user-1",
		Email:        "ada@example.org",
		DisplayName:  "Ada",
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenExpiry:  now.Add(time.Hour),
		CreatedAt:    now,
		ExpiresAt:    now.Add(7 * 24 * time.Hour),
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.CreateSession(ctx, testSession("s1", now)))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.True(t, got.TokenExpiry.Equal(now.Add(time.Hour)))
	assert.True(t, got.LastSeenAt.Equal(now))

	newExpiry := now.Add(2 * time.Hour)
	require.NoError(t, store.UpdateSessionTokens(ctx, "s1", "at2", "rt2", newExpiry))
	require.NoError(t, store.TouchSession(ctx, "s1", now.Add(time.Minute)))

	got, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "at2", got.AccessToken)
	assert.Equal(t, "rt2", got.RefreshToken)
	assert.True(t, got.TokenExpiry.Equal(newExpiry))
	assert.True(t, got.LastSeenAt.Equal(now.Add(time.Minute)))

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.DeleteSession(ctx, "s1"), "deleting twice is fine")
}

func TestSession_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateSessionTokens(ctx, "missing", "a", "r", time.Now()), ErrNotFound)
	assert.ErrorIs(t, store.TouchSession(ctx, "missing", time.Now()), ErrNotFound)
}

func TestSession_Expired(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	expired := testSession("old", now.Add(-48*time.Hour))
	expired.ExpiresAt = now.Add(-time.Hour)
	require.NoError(t, store.CreateSession(ctx, expired))
	require.NoError(t, store.CreateSession(ctx, testSession("fresh", now)))

	_, err := store.GetSession(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetSession(ctx, "fresh")
	assert.NoError(t, err)
}

func TestResponseCache(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.GetCached(ctx, "member:P000197")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutCached(ctx, "member:P000197", []byte(`{"v":1}`), time.Hour))
	require.NoError(t, store.PutCached(ctx, "member:P000197", []byte(`{"v":2}`), time.Hour))

	got, err := store.GetCached(ctx, "member:P000197")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got), "put replaces")

	assert.Error(t, store.PutCached(ctx, "k", []byte("v"), 0))
}

func TestResponseCache_Expiry(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.PutCached(ctx, "bill:118:hr:1", []byte("x"), time.Minute))

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := store.GetCached(ctx, "bill:118:hr:1")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.DeleteExpiredCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}

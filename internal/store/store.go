// ABOUTME: Store interfaces and data types for cosint-web persistence
// ABOUTME: Defines browser sessions and the backend response cache

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// BrowserSession links a browser cookie to the identity provider's tokens.
type BrowserSession struct {
	ID           string
	UserID       string
	Email        string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time // access token expiry
	CreatedAt    time.Time
	ExpiresAt    time.Time // cookie lifetime
	LastSeenAt   time.Time
}

// SessionStore persists browser sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *BrowserSession) error
	GetSession(ctx context.Context, id string) (*BrowserSession, error)
	UpdateSessionTokens(ctx context.Context, id, accessToken, refreshToken string, tokenExpiry time.Time) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// CacheStore holds raw backend responses with a time-to-live.
type CacheStore interface {
	GetCached(ctx context.Context, key string) ([]byte, error)
	PutCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteExpiredCache(ctx context.Context) (int64, error)
}

// Store is everything the web server persists.
type Store interface {
	SessionStore
	CacheStore
	Close() error
}

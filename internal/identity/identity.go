// ABOUTME: Identity provider contract, user/session types and provider selection
// ABOUTME: Falls back to a placeholder provider when no provider is configured

package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrNotConfigured is returned by every PlaceholderProvider call.
	ErrNotConfigured = errors.New("identity provider not configured")
	// ErrUnauthorized means the provider rejected the credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// User is the identity behind an access token.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// DisplayName picks the friendliest name the provider gave us.
func (u *User) DisplayName() string {
	for _, key := range []string{"full_name", "name", "user_name", "preferred_username"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Session is a token pair issued by the provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user"`
}

// Expiry returns when the access token stops being valid.
func (s *Session) Expiry(now time.Time) time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return now.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// Provider is the external identity service.
type Provider interface {
	// AuthorizeURL is where the browser starts an OAuth sign-in.
	AuthorizeURL(oauthProvider, redirectTo, codeChallenge string) (string, error)
	// ExchangeCode trades an authorization code and PKCE verifier for a session.
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	// Refresh trades a refresh token for a new session.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	// CurrentUser resolves an access token.
	CurrentUser(ctx context.Context, accessToken string) (*User, error)
	// SignOut revokes the session behind accessToken.
	SignOut(ctx context.Context, accessToken string) error
}

// Config configures New.
type Config struct {
	URL        string
	AnonKey    string
	JWTSecret  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// New returns a GoTrue provider, or a PlaceholderProvider when URL or
// AnonKey is missing.
func New(cfg Config, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" || cfg.AnonKey == "" {
		logger.Warn("identity provider not configured, sign-in is disabled")
		return PlaceholderProvider{}
	}
	return NewGoTrue(cfg, logger)
}

// PlaceholderProvider stands in when the provider is not configured.
type PlaceholderProvider struct{}

func (PlaceholderProvider) AuthorizeURL(string, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (PlaceholderProvider) ExchangeCode(context.Context, string, string) (*Session, error) {
	return nil, ErrNotConfigured
}

func (PlaceholderProvider) Refresh(context.Context, string) (*Session, error) {
	return nil, ErrNotConfigured
}

func (PlaceholderProvider) CurrentUser(context.Context, string) (*User, error) {
	return nil, ErrNotConfigured
}

func (PlaceholderProvider) SignOut(context.Context, string) error {
	return ErrNotConfigured
}

// ABOUTME: Browser session manager tying the session cookie to provider tokens
// ABOUTME: Starts and ends sessions and refreshes access tokens lazily per outbound call

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/cosint-web/internal/identity"
	"github.com/2389/cosint-web/internal/store"
)

const (
	// SessionCookieName is the browser session cookie.
	SessionCookieName = "cosint_session"
	// SessionDuration is how long a browser session lasts without sign-in.
	SessionDuration = 30 * 24 * time.Hour
	// refreshLeeway refreshes access tokens this long before they expire.
	refreshLeeway = time.Minute
	// touchInterval limits last-seen writes.
	touchInterval = 5 * time.Minute
)

// ErrNoSession means the request carries no valid session.
var ErrNoSession = errors.New("no session")

// Manager owns browser sessions.
type Manager struct {
	store    store.SessionStore
	provider identity.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a session manager.
func NewManager(s store.SessionStore, p identity.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    s,
		provider: p,
		logger:   logger.With("component", "auth"),
		now:      time.Now,
	}
}

// Start stores a session for the provider session and sets the cookie.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, sess *identity.Session) (*User, error) {
	if sess == nil || sess.User == nil {
		return nil, errors.New("provider session has no user")
	}
	if err := m.verifyToken(r.Context(), sess.AccessToken, sess.User.ID); err != nil {
		if rejected(err) {
			return nil, fmt.Errorf("verifying provider session: %w", err)
		}
		m.logger.Warn("could not verify provider session", "user_id", sess.User.ID, "error", err)
	}

	id, err := GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := m.now()
	bs := &store.BrowserSession{
		ID:           id,
		UserID:       sess.User.ID,
		Email:        sess.User.Email,
		DisplayName:  sess.User.DisplayName(),
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		TokenExpiry:  sess.Expiry(now),
		CreatedAt:    now,
		ExpiresAt:    now.Add(SessionDuration),
	}
	if err := m.store.CreateSession(r.Context(), bs); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		Expires:  bs.ExpiresAt,
		HttpOnly: true,
		Secure:   IsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})

	m.logger.Info("user signed in", "user_id", bs.UserID)
	return userFromSession(bs), nil
}

// Lookup returns the user behind the request's session cookie.
func (m *Manager) Lookup(r *http.Request) (*User, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	bs, err := m.store.GetSession(r.Context(), cookie.Value)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	if now := m.now(); now.Sub(bs.LastSeenAt) > touchInterval {
		if err := m.revalidate(r.Context(), bs); err != nil {
			return nil, err
		}
		if err := m.store.TouchSession(r.Context(), bs.ID, now); err != nil {
			m.logger.Warn("failed to record session activity", "error", err)
		}
	}
	return userFromSession(bs), nil
}

// revalidate asks the provider who the session's access token belongs to.
// A token the provider rejects, or one issued to another user, ends the
// session. Provider outages keep it.
func (m *Manager) revalidate(ctx context.Context, bs *store.BrowserSession) error {
	token, err := m.AccessToken(ctx, bs.ID)
	if err == nil {
		err = m.verifyToken(ctx, token, bs.UserID)
	}
	if err == nil {
		return nil
	}

	if !rejected(err) {
		m.logger.Warn("could not revalidate session", "user_id", bs.UserID, "error", err)
		return nil
	}

	m.logger.Info("session rejected by provider", "user_id", bs.UserID, "error", err)
	if err := m.store.DeleteSession(ctx, bs.ID); err != nil {
		m.logger.Error("failed to delete session", "error", err)
	}
	return ErrNoSession
}

// verifyToken resolves accessToken through the provider and checks it was
// issued to userID.
func (m *Manager) verifyToken(ctx context.Context, accessToken, userID string) error {
	u, err := m.provider.CurrentUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if u.ID != userID {
		return fmt.Errorf("%w: token belongs to another user", identity.ErrUnauthorized)
	}
	return nil
}

// rejected reports whether err means the credential itself is bad.
func rejected(err error) bool {
	for _, target := range []error{
		ErrNoSession,
		identity.ErrUnauthorized,
		identity.ErrInvalidToken,
		identity.ErrExpiredToken,
		identity.ErrMissingClaim,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// End signs the user out on the provider, deletes the session and clears
// the cookie. Provider failures are logged; the local session is always
// removed.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if bs, err := m.store.GetSession(r.Context(), cookie.Value); err == nil {
			if err := m.provider.SignOut(r.Context(), bs.AccessToken); err != nil {
				m.logger.Warn("provider sign-out failed", "error", err)
			}
			m.logger.Info("user signed out", "user_id", bs.UserID)
		}
		if err := m.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			m.logger.Error("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// AccessToken returns a usable access token for the session, refreshing it
// through the provider when it is about to expire.
func (m *Manager) AccessToken(ctx context.Context, sessionID string) (string, error) {
	bs, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", err
	}

	now := m.now()
	if bs.TokenExpiry.After(now.Add(refreshLeeway)) {
		return bs.AccessToken, nil
	}

	fresh, err := m.provider.Refresh(ctx, bs.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			return "", fmt.Errorf("%w: refresh rejected", ErrNoSession)
		}
		if bs.TokenExpiry.After(now) {
			m.logger.Warn("token refresh failed, using current token", "error", err)
			return bs.AccessToken, nil
		}
		return "", fmt.Errorf("refreshing access token: %w", err)
	}

	if err := m.store.UpdateSessionTokens(ctx, sessionID, fresh.AccessToken, fresh.RefreshToken, fresh.Expiry(now)); err != nil {
		return "", err
	}
	m.logger.Debug("access token refreshed", "user_id", bs.UserID)
	return fresh.AccessToken, nil
}

// Tokens returns a credential source bound to one browser session. Each
// call reads the session afresh, so refreshed tokens are picked up.
func (m *Manager) Tokens(sessionID string) *SessionTokens {
	return &SessionTokens{manager: m, sessionID: sessionID}
}

// SessionTokens yields the current access token of one session.
type SessionTokens struct {
	manager   *Manager
	sessionID string
}

// Token returns the session's access token.
func (t *SessionTokens) Token(ctx context.Context) (string, error) {
	return t.manager.AccessToken(ctx, t.sessionID)
}

func userFromSession(bs *store.BrowserSession) *User {
	return &User{
		SessionID:   bs.ID,
		UserID:      bs.UserID,
		Email:       bs.Email,
		DisplayName: bs.DisplayName,
	}
}

// IsSecure reports whether the request reached us over HTTPS, directly or
// through a proxy.
func IsSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// GenerateSecureToken returns a hex-encoded random token of the given size.
func GenerateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ABOUTME: Tests for browser sessions, token refresh and the auth middleware
// ABOUTME: Uses an in-memory SQLite store and a scripted identity provider

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2389/cosint-web/internal/identity"
	"github.com/2389/cosint-web/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	identity.PlaceholderProvider
	refreshed  int
	refreshErr error
	signedOut  []string
	// currentUser answers CurrentUser; nil behaves like an unconfigured provider.
	currentUser func(token string) (*identity.User, error)
}

func (f *fakeProvider) CurrentUser(ctx context.Context, token string) (*identity.User, error) {
	if f.currentUser == nil {
		return f.PlaceholderProvider.CurrentUser(ctx, token)
	}
	return f.currentUser(token)
}

func (f *fakeProvider) Refresh(_ context.Context, refreshToken string) (*identity.Session, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &identity.Session{
		AccessToken:  "fresh-" + refreshToken,
		RefreshToken: "rt-next",
		ExpiresIn:    3600,
		User:         &identity.User{ID: "u1"},
	}, nil
}

func (f *fakeProvider) SignOut(_ context.Context, accessToken string) error {
	f.signedOut = append(f.signedOut, accessToken)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeProvider, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	p := &fakeProvider{}
	return NewManager(s, p, nil), p, s
}

func providerSession(expiresIn int) *identity.Session {
	return &identity.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresIn:    expiresIn,
		User: &identity.User{
			ID:           "u1",
			Email:        "ada@example.org",
			UserMetadata: map[string]any{"full_name": "Ada Lovelace"},
		},
	}
}

// signIn starts a session and returns a request carrying its cookie.
func signIn(t *testing.T, m *Manager, sess *identity.Session) (*http.Request, *User) {
	t.Helper()
	rec := httptest.NewRecorder()
	user, err := m.Start(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil), sess)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	return req, user
}

func TestStartAndLookup(t *testing.T) {
	m, _, _ := newTestManager(t)
	req, started := signIn(t, m, providerSession(3600))

	user, err := m.Lookup(req)
	require.NoError(t, err)
	assert.Equal(t, started.SessionID, user.SessionID)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, "Ada Lovelace", user.DisplayName)
}

func TestLookup_NoCookie(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Lookup(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	_, err = m.Lookup(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAccessToken_Current(t *testing.T) {
	m, p, _ := newTestManager(t)
	_, user := signIn(t, m, providerSession(3600))

	token, err := m.Tokens(user.SessionID).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", token)
	assert.Zero(t, p.refreshed)
}

func TestAccessToken_RefreshesNearExpiry(t *testing.T) {
	m, p, _ := newTestManager(t)
	_, user := signIn(t, m, providerSession(30))

	token, err := m.AccessToken(context.Background(), user.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-rt", token)
	assert.Equal(t, 1, p.refreshed)

	token, err = m.AccessToken(context.Background(), user.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-rt", token, "refreshed token is stored")
	assert.Equal(t, 1, p.refreshed)
}

func TestAccessToken_RefreshRejected(t *testing.T) {
	m, p, _ := newTestManager(t)
	_, user := signIn(t, m, providerSession(0))
	p.refreshErr = identity.ErrUnauthorized

	_, err := m.AccessToken(context.Background(), user.SessionID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAccessToken_ProviderDownUsesCurrentToken(t *testing.T) {
	m, p, _ := newTestManager(t)
	_, user := signIn(t, m, providerSession(30))
	p.refreshErr = errors.New("provider unavailable")

	token, err := m.AccessToken(context.Background(), user.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "at", token)
}

func TestEnd(t *testing.T) {
	m, p, _ := newTestManager(t)
	req, _ := signIn(t, m, providerSession(3600))

	rec := httptest.NewRecorder()
	m.End(rec, req)

	assert.Equal(t, []string{"at"}, p.signedOut)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)

	_, err := m.Lookup(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRequireUser(t *testing.T) {
	m, p, _ := newTestManager(t)
	var seen *User
	handler := m.RequireUser("/login", func(w http.ResponseWriter, r *http.Request) {
		seen = MustFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Nil(t, seen)

	req, _ := signIn(t, m, providerSession(3600))
	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)

	// A session the provider will no longer refresh is ended.
	expiredReq, _ := signIn(t, m, providerSession(0))
	p.refreshErr = identity.ErrUnauthorized
	rec = httptest.NewRecorder()
	handler(rec, expiredReq)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	_, err := m.Lookup(expiredReq)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestOptionalUser(t *testing.T) {
	m, _, _ := newTestManager(t)
	var seen *User
	handler := m.OptionalUser(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Nil(t, seen)

	req, _ := signIn(t, m, providerSession(3600))
	handler(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
}

func TestFromContext_Empty(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Panics(t, func() { MustFromContext(context.Background()) })
}

func TestIsSecure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, IsSecure(req))
	req.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, IsSecure(req))
}

func TestStart_ProviderRejectsToken(t *testing.T) {
	m, p, _ := newTestManager(t)
	p.currentUser = func(string) (*identity.User, error) { return nil, identity.ErrUnauthorized }

	rec := httptest.NewRecorder()
	_, err := m.Start(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil), providerSession(3600))
	assert.ErrorIs(t, err, identity.ErrUnauthorized)
	assert.Empty(t, rec.Result().Cookies())
}

func TestStart_TokenForAnotherUser(t *testing.T) {
	m, p, _ := newTestManager(t)
	p.currentUser = func(string) (*identity.User, error) { return &identity.User{ID: "u2"}, nil }

	_, err := m.Start(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth/callback", nil), providerSession(3600))
	assert.ErrorIs(t, err, identity.ErrUnauthorized)
}

func TestLookup_ProviderDownKeepsSession(t *testing.T) {
	m, p, _ := newTestManager(t)
	req, _ := signIn(t, m, providerSession(3600))

	p.currentUser = func(string) (*identity.User, error) { return nil, errors.New("connection refused") }
	m.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	user, err := m.Lookup(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
}

func TestLookup_RevalidatesLocallySignedTokens(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	provider := identity.NewGoTrue(identity.Config{
		URL:       "http://identity.invalid",
		AnonKey:   "anon",
		JWTSecret: "shared-secret",
	}, nil)
	m := NewManager(s, provider, nil)

	signer := identity.NewJWTVerifier([]byte("shared-secret"))
	token, err := signer.Generate(&identity.User{ID: "u1", Email: "ada@example.org"}, time.Hour)
	require.NoError(t, err)

	sess := providerSession(3600)
	sess.AccessToken = token
	req, user := signIn(t, m, sess)

	m.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err = m.Lookup(req)
	require.NoError(t, err, "a token signed with the shared secret stays valid")

	// Swap in a token signed with another secret, as a forged row would carry.
	forged, err := identity.NewJWTVerifier([]byte("other-secret")).Generate(&identity.User{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.UpdateSessionTokens(context.Background(), user.SessionID, forged, "rt", time.Now().Add(time.Hour)))

	m.now = func() time.Time { return time.Now().Add(20 * time.Minute) }
	_, err = m.Lookup(req)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = s.GetSession(context.Background(), user.SessionID)
	assert.ErrorIs(t, err, store.ErrNotFound, "rejected session is deleted")
}

// ABOUTME: Tests for the identity provider client, placeholder and JWT verifier
// ABOUTME: Uses an httptest GoTrue stand-in to check request shapes and error mapping

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PlaceholderWhenUnconfigured(t *testing.T) {
	p := New(Config{URL: "https://id.example.org"}, nil)
	_, ok := p.(PlaceholderProvider)
	require.True(t, ok, "missing anon key selects the placeholder")

	ctx := context.Background()
	_, err := p.ExchangeCode(ctx, "code", "verifier")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = p.CurrentUser(ctx, "token")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = p.Refresh(ctx, "r")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, p.SignOut(ctx, "token"), ErrNotConfigured)
	_, err = p.AuthorizeURL("github", "/", "c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthorizeURL(t *testing.T) {
	g := NewGoTrue(Config{URL: "https://id.example.org/", AnonKey: "anon"}, nil)

	raw, err := g.AuthorizeURL("github", "https://site/auth/callback?next=%2F", "chal")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	assert.Equal(t, "github", u.Query().Get("provider"))
	assert.Equal(t, "https://site/auth/callback?next=%2F", u.Query().Get("redirect_to"))
	assert.Equal(t, "chal", u.Query().Get("code_challenge"))
	assert.Equal(t, "s256", u.Query().Get("code_challenge_method"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "pkce", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["auth_code"] != "good" || body["code_verifier"] != "v" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600,
			"user":{"id":"u1","email":"a@example.org","user_metadata":{"full_name":"Ada"}}}`))
	}))
	defer srv.Close()

	g := NewGoTrue(Config{URL: srv.URL, AnonKey: "anon"}, nil)

	s, err := g.ExchangeCode(context.Background(), "good", "v")
	require.NoError(t, err)
	assert.Equal(t, "at", s.AccessToken)
	assert.Equal(t, "Ada", s.User.DisplayName())

	now := time.Unix(1000, 0)
	assert.Equal(t, now.Add(time.Hour), s.Expiry(now))

	_, err = g.ExchangeCode(context.Background(), "stale", "v")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "code expired")
}

func TestCurrentUser_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@example.org"}`))
	}))
	defer srv.Close()

	g := NewGoTrue(Config{URL: srv.URL, AnonKey: "anon"}, nil)

	u, err := g.CurrentUser(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "a@example.org", u.DisplayName())

	_, err = g.CurrentUser(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCurrentUser_LocalVerification(t *testing.T) {
	secret := "test-secret-that-is-long-enough-32b"
	g := NewGoTrue(Config{URL: "http://127.0.0.1:1", AnonKey: "anon", JWTSecret: secret}, nil)
	v := NewJWTVerifier([]byte(secret))

	token, err := v.Generate(&User{ID: "u1", Email: "a@example.org"}, time.Hour)
	require.NoError(t, err)

	u, err := g.CurrentUser(context.Background(), token)
	require.NoError(t, err, "no network call is made")
	assert.Equal(t, "u1", u.ID)

	expired, err := v.Generate(&User{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = g.CurrentUser(context.Background(), expired)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier([]byte("secret-a"))
	other := NewJWTVerifier([]byte("secret-b"))

	token, err := other.Generate(&User{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	_, err = v.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSub, err := v.Generate(&User{}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(noSub)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestRefreshAndSignOut(t *testing.T) {
	var signedOut bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
			_, _ = w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","expires_in":60,"user":{"id":"u1"}}`))
		case "/auth/v1/logout":
			signedOut = r.Header.Get("Authorization") == "Bearer at2"
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewGoTrue(Config{URL: srv.URL, AnonKey: "anon"}, nil)

	s, err := g.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "at2", s.AccessToken)

	require.NoError(t, g.SignOut(context.Background(), s.AccessToken))
	assert.True(t, signedOut)

	_, err = g.Refresh(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestPKCE(t *testing.T) {
	p, err := NewPKCE()
	require.NoError(t, err)
	assert.Len(t, p.Verifier, 43)
	assert.Equal(t, Challenge(p.Verifier), p.Challenge)
	assert.False(t, strings.ContainsAny(p.Challenge, "+/="))

	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

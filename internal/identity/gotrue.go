// ABOUTME: GoTrue (Supabase Auth) HTTP client implementing Provider
// ABOUTME: Covers PKCE code exchange, refresh, user lookup and sign-out

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// GoTrue is a Provider backed by a GoTrue-compatible auth server.
type GoTrue struct {
	baseURL  string
	anonKey  string
	http     *http.Client
	verifier *JWTVerifier
	logger   *slog.Logger
}

// NewGoTrue creates a GoTrue client. A non-empty JWTSecret enables local
// token verification in CurrentUser.
func NewGoTrue(cfg Config, logger *slog.Logger) *GoTrue {
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	g := &GoTrue{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey: cfg.AnonKey,
		http:    hc,
		logger:  logger.With("component", "identity"),
	}
	if cfg.JWTSecret != "" {
		g.verifier = NewJWTVerifier([]byte(cfg.JWTSecret))
	}
	return g
}

// AuthorizeURL builds the provider's /authorize URL for a PKCE sign-in.
func (g *GoTrue) AuthorizeURL(oauthProvider, redirectTo, codeChallenge string) (string, error) {
	if oauthProvider == "" {
		return "", errors.New("oauth provider is required")
	}
	q := url.Values{}
	q.Set("provider", oauthProvider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "s256")
	return g.baseURL + "/authorize?" + q.Encode(), nil
}

// ExchangeCode trades an authorization code for a session.
func (g *GoTrue) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	return g.token(ctx, "pkce", body)
}

// Refresh trades a refresh token for a new session.
func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrUnauthorized)
	}
	return g.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (g *GoTrue) token(ctx context.Context, grantType string, body any) (*Session, error) {
	var s Session
	if err := g.call(ctx, http.MethodPost, "/token?grant_type="+grantType, "", body, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" || s.User == nil || s.User.ID == "" {
		return nil, fmt.Errorf("%w: provider returned an incomplete session", ErrInvalidToken)
	}
	return &s, nil
}

// CurrentUser resolves accessToken, locally when a JWT secret is configured.
func (g *GoTrue) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	if g.verifier != nil {
		return g.verifier.Verify(accessToken)
	}

	var u User
	if err := g.call(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: user", ErrMissingClaim)
	}
	return &u, nil
}

// SignOut revokes the session on the provider.
func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	return g.call(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// call sends one request to the provider and decodes the JSON answer into out.
func (g *GoTrue) call(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", g.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := providerError(resp.Body)
		g.logger.Debug("identity provider rejected request", "path", path, "status", resp.StatusCode, "message", msg)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return fmt.Errorf("identity %s: status %d: %s", path, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding identity response: %w", err)
	}
	return nil
}

// providerError extracts the human-readable part of a GoTrue error body.
func providerError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 16<<10))
	var e struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if json.Unmarshal(data, &e) == nil {
		for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}

// ABOUTME: Web front-end for cosint-web: pages, auth redirects and the chat stream
// ABOUTME: Wires browser requests to per-browser chat sessions, registries and notebooks

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/assets"
	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/chat"
	"github.com/2389/cosint-web/internal/dedupe"
	"github.com/2389/cosint-web/internal/identity"
	"github.com/2389/cosint-web/internal/registry"
)

const (
	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "cosint_csrf"

	// PKCECookieName holds the PKCE verifier between /auth/login and the callback
	PKCECookieName = "cosint_pkce"

	// pkceCookieLifetime bounds how long a sign-in may take at the provider
	pkceCookieLifetime = 10 * time.Minute

	loginPath     = "/login"
	authErrorPath = "/auth/auth-code-error"
)

type contextKey string

const csrfContextKey contextKey = "csrf_token"

// Backend is the part of the COSINT API the web front-end uses.
type Backend interface {
	chat.Backend
	registry.Lister
	GetMember(ctx context.Context, tokens api.TokenSource, bioguideID string) (*api.MemberBundle, error)
	GetBill(ctx context.Context, tokens api.TokenSource, congress int, billType, number string) (*api.BillBundle, error)
}

// Config holds web front-end configuration
type Config struct {
	// SiteURL is the canonical external origin, e.g. https://cosint.example.org
	SiteURL string
	// PublicHost is a bare host name served over HTTPS, used when SiteURL is empty
	PublicHost string
	// OAuthProvider names the identity provider's upstream OAuth provider
	OAuthProvider string
	// StreamTimeout bounds one chat submission
	StreamTimeout time.Duration
	// TrackedBills lists tracked bills in the sidebar after conversations
	TrackedBills bool
}

// App serves the web front-end.
type App struct {
	backend    Backend
	provider   identity.Provider
	sessions   *auth.Manager
	hub        *registry.Hub
	dedupe     *dedupe.Cache
	config     Config
	logger     *slog.Logger
	workspaces *workspaces
	pages      *pageSet
}

// New creates the web front-end. Close stops its background work.
func New(backend Backend, provider identity.Provider, sessions *auth.Manager, hub *registry.Hub, dd *dedupe.Cache, cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		backend:  backend,
		provider: provider,
		sessions: sessions,
		hub:      hub,
		dedupe:   dd,
		config:   cfg,
		logger:   logger.With("component", "web"),
		pages:    mustParsePages(),
	}
	a.workspaces = newWorkspaces(a.newWorkspace)
	return a
}

// Close tears down every browser workspace and stops the cleanup loop.
func (a *App) Close() {
	a.workspaces.Close()
}

// RegisterRoutes registers all web routes on the given mux
func (a *App) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.Handle("GET "+assets.Prefix, assets.FileServer())
	mux.HandleFunc("GET /login", a.sessions.OptionalUser(a.handleLoginPage))
	mux.HandleFunc("GET /auth/login", a.handleAuthLogin)
	mux.HandleFunc("GET /auth/callback", a.handleAuthCallback)
	mux.HandleFunc("GET /auth/auth-code-error", a.handleAuthError)

	// Pages
	mux.HandleFunc("GET /{$}", a.requireUser(a.handleHome))
	mux.HandleFunc("POST /logout", a.requireUser(a.handleLogout))
	mux.HandleFunc("GET /member/{id}", a.requireUser(a.handleMember))
	mux.HandleFunc("GET /bill/{congress}/{type}/{number}", a.requireUser(a.handleBill))

	// Partials
	mux.HandleFunc("GET /registry", a.requireUser(a.handleRegistryPartial))
	mux.HandleFunc("GET /notebook/{id}", a.requireUser(a.handleNotebookPartial))

	// Chat
	mux.HandleFunc("POST /chat/{scope}/send", a.requireUser(a.handleChatSend))
	mux.HandleFunc("GET /chat/{scope}/stream", a.requireUser(a.handleChatStream))
	mux.HandleFunc("POST /chat/{scope}/select", a.requireUser(a.handleChatSelect))
	mux.HandleFunc("POST /chat/{scope}/new", a.requireUser(a.handleChatNew))

	a.logger.Info("web routes registered")
}

// requireUser requires a signed-in user and a CSRF token on the request.
func (a *App) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return a.sessions.RequireUser(loginPath, func(w http.ResponseWriter, r *http.Request) {
		r, _ = a.ensureCSRFToken(w, r)
		next(w, r)
	})
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *App) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	token, err := auth.GenerateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   auth.IsSecure(r),
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form or header against cookie
func (a *App) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// origin returns the external origin used in redirects: the configured site
// URL, then the public host, then the origin the request arrived on.
func (a *App) origin(r *http.Request) string {
	if a.config.SiteURL != "" {
		return strings.TrimRight(a.config.SiteURL, "/")
	}
	if a.config.PublicHost != "" {
		return "https://" + a.config.PublicHost
	}
	scheme := "http"
	if auth.IsSecure(r) {
		scheme = "https"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

// wantsJSON reports whether the request came from the page script rather
// than a plain form post.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// ABOUTME: Sign-in and sign-out handlers: login page, OAuth PKCE redirect and callback
// ABOUTME: A failed code exchange lands on the auth-code-error page

package web

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/identity"
	"github.com/2389/cosint-web/internal/registry"
)

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// handleLoginPage shows the sign-in page, or sends signed-in users home
func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.FromContext(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	next := safeNext(r.URL.Query().Get("next"))
	if next == "/" {
		next = ""
	}
	a.renderPage(w, http.StatusOK, "login", loginData{
		pageData: pageData{Title: "Sign in"},
		Next:     next,
	})
}

// handleAuthLogin starts an OAuth sign-in at the identity provider
func (a *App) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	origin := a.origin(r)

	pkce, err := identity.NewPKCE()
	if err != nil {
		a.logger.Error("failed to start sign-in", "error", err)
		http.Redirect(w, r, origin+authErrorPath, http.StatusSeeOther)
		return
	}

	callback := origin + "/auth/callback"
	if next := safeNext(r.URL.Query().Get("next")); next != "/" {
		callback += "?next=" + url.QueryEscape(next)
	}

	target, err := a.provider.AuthorizeURL(a.config.OAuthProvider, callback, pkce.Challenge)
	if err != nil {
		a.logger.Error("failed to build authorize URL", "error", err)
		http.Redirect(w, r, origin+authErrorPath, http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     PKCECookieName,
		Value:    pkce.Verifier,
		Path:     "/auth",
		Expires:  time.Now().Add(pkceCookieLifetime),
		HttpOnly: true,
		Secure:   auth.IsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handleAuthCallback exchanges the authorization code for a session and
// redirects to origin+next, or to the auth-code-error page on failure
func (a *App) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	origin := a.origin(r)
	code := r.URL.Query().Get("code")
	next := safeNext(r.URL.Query().Get("next"))

	// The verifier is single use.
	http.SetCookie(w, &http.Cookie{Name: PKCECookieName, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})

	verifier := ""
	if cookie, err := r.Cookie(PKCECookieName); err == nil {
		verifier = cookie.Value
	}

	if code == "" || verifier == "" {
		a.logger.Warn("auth callback without code or verifier")
		http.Redirect(w, r, origin+authErrorPath, http.StatusSeeOther)
		return
	}

	sess, err := a.provider.ExchangeCode(r.Context(), code, verifier)
	if err != nil {
		a.logger.Warn("code exchange failed", "error", err)
		http.Redirect(w, r, origin+authErrorPath, http.StatusSeeOther)
		return
	}

	user, err := a.sessions.Start(w, r, sess)
	if err != nil {
		a.logger.Error("failed to start session", "error", err)
		http.Redirect(w, r, origin+authErrorPath, http.StatusSeeOther)
		return
	}

	a.hub.Publish(user.UserID, registry.Signal{Reason: registry.ReasonIdentity})
	http.Redirect(w, r, origin+next, http.StatusSeeOther)
}

// handleAuthError explains a failed sign-in
func (a *App) handleAuthError(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, http.StatusOK, "auth_error", pageData{Title: "Authentication Error"})
}

// handleLogout ends the session and drops the browser's workspace
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	user := auth.MustFromContext(r.Context())
	a.workspaces.remove(user.SessionID)
	a.sessions.End(w, r)
	a.hub.Publish(user.UserID, registry.Signal{Reason: registry.ReasonIdentity})

	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

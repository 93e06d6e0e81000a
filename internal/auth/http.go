// ABOUTME: HTTP middleware requiring a signed-in user on page and chat routes
// ABOUTME: Redirects anonymous browsers to the login page and adds the user to context

package auth

import (
	"errors"
	"net/http"
)

// RequireUser wraps a handler so only signed-in users reach it. Anonymous
// requests are redirected to loginPath. The user is available through
// FromContext.
func (m *Manager) RequireUser(loginPath string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := m.Lookup(r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				m.logger.Error("session lookup failed", "error", err)
			}
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}

		// Drop sessions whose refresh token the provider no longer honours.
		if _, err := m.AccessToken(r.Context(), user.SessionID); errors.Is(err, ErrNoSession) {
			m.logger.Info("session expired at provider", "user_id", user.UserID)
			m.End(w, r)
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// OptionalUser adds the user to context when signed in and passes every
// request through.
func (m *Manager) OptionalUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if user, err := m.Lookup(r); err == nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next(w, r)
	}
}

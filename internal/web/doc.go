// Package web serves the browser front-end of cosint-web.
//
// # Overview
//
// The front-end is server-rendered. Each signed-in browser session owns a
// workspace held in memory:
//
//   - Home chat: a chat.Session shown on the terminal page
//   - Registry: the sidebar list of past conversations (and tracked bills)
//   - Dashboards: one chat.Session plus notebook.Notebook per open member page
//
// Workspaces idle for 30 minutes are dropped; the next request rebuilds an
// empty one.
//
// # Live updates
//
// Chat replies stream from the backend into the session in the background.
// GET /chat/{scope}/stream is a Server-Sent Events stream that pushes the
// rendered transcript, sidebar and notebook whenever they change:
//
//	event: transcript
//	data: <div data-in-flight="true">...
//
// Wakeups coalesce, so a slow browser skips intermediate renders and always
// receives the latest state.
//
// # Chat scopes
//
// Chat routes take a scope: "home" for the terminal chat, or
// "member.<bioguide id>" for a dashboard opened in this browser.
//
// # Authentication
//
// Sign-in is delegated to the identity provider with an OAuth PKCE
// redirect. /auth/callback exchanges the code, starts a browser session and
// redirects to the site origin plus the "next" path; any failure redirects
// to /auth/auth-code-error.
//
// # CSRF Protection
//
// All form posts require a CSRF token, either as a form field or header:
//
//	<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
//	X-CSRF-Token: <token>
package web

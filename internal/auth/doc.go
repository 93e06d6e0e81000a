// Package auth keeps track of who is signed in to the web front-end.
//
// Sign-in itself happens at the external identity provider (see package
// identity). Once the provider returns a session, [Manager.Start] stores its
// tokens server-side and gives the browser an opaque cookie; the tokens
// never reach the browser.
//
// # Request Flow
//
//	cookie ──Lookup──▶ store.BrowserSession ──▶ auth.User in context
//
// [Manager.RequireUser] redirects anonymous browsers to the login page.
// Handlers read the user with [FromContext].
//
// # Credentials for Backend Calls
//
// [Manager.Tokens] returns a credential source for one browser session.
// Every outbound backend call asks it for a token; it refreshes the access
// token through the provider when it is within a minute of expiry.
package auth

// Package identity talks to the external identity provider.
//
// The site never stores passwords. Sign-in is an OAuth round trip through a
// GoTrue-compatible provider (Supabase Auth) using PKCE:
//
//  1. [NewPKCE] creates a verifier and its S256 challenge.
//  2. [Provider.AuthorizeURL] sends the browser to the provider.
//  3. The provider redirects back with ?code=...
//  4. [Provider.ExchangeCode] trades code + verifier for a [Session].
//
// Access tokens are short-lived; [Provider.Refresh] trades the refresh token
// for a new pair. [Provider.CurrentUser] resolves a token to its [User],
// verifying it locally when a JWT secret is configured.
//
// When the provider URL or key is missing, [New] returns a
// [PlaceholderProvider] so the site still starts; every call on it fails
// with [ErrNotConfigured].
package identity

// Package store provides persistent storage for cosint-web using SQLite.
//
// Two kinds of data live here:
//
//   - BrowserSession: the server side of the session cookie, holding the
//     identity provider's access and refresh tokens for the signed-in user.
//   - Response cache: raw member and bill bundles from the backend, kept for
//     a configurable time-to-live (24h by default).
//
// Conversations, messages and research notes are not stored here; the
// backend owns conversation history and notes live only as long as the
// dashboard page that captured them.
//
// SQLiteStore implements [SessionStore] and [CacheStore] in a single struct.
// Expired rows are invisible to reads and removed by the server's periodic
// sweep (DeleteExpiredSessions, DeleteExpiredCache).
//
// Timestamps are stored as RFC 3339 text in UTC so they compare lexically.
package store

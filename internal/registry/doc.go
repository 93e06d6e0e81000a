// Package registry lists a user's conversations for the sidebar.
//
// A [Registry] fetches GET /conversations (and optionally GET
// /tracked-bills) and exposes the result with a loading flag. It never
// decides on its own when to refresh: owners publish a [Signal] on the
// [Hub] for the session when the selection changes, the signed-in user
// changes, or the chat session creates a conversation, and [Registry.Watch]
// re-fetches on each one.
//
// A conversation created by the chat session may not be listed by the
// backend yet when the refresh lands. [Registry.AddProvisional] shows it
// at the top until a refresh includes its id.
package registry

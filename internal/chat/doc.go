// Package chat implements the streaming chat session.
//
// A [Session] owns one transcript and at most one in-flight submission:
//
//	Idle ──Submit──▶ Submitting ──headers──▶ Streaming ──EOF──▶ Idle
//	                      │                      │
//	                      └──────failure─────────┴──▶ Idle (apology)
//
// While streaming, the last transcript entry is replaced wholesale with the
// accumulated assistant text after every chunk. Failures never surface as
// errors to the page; the transcript ends with [ApologyMessage] instead.
//
// The backend assigns a conversation id on the first message of a new
// conversation and reports it in the X-Conversation-Id header. The session
// adopts it and fires OnIDAssigned once.
//
// Observers receive a [Snapshot] after every mutation through OnChange.
// Callbacks run outside the session lock, on the goroutine that made the
// change.
package chat

// Package api is the typed HTTP client for the COSINT backend.
//
// Every response is validated at the boundary: a body that does not decode
// into the expected shape yields an error wrapping [ErrMalformedResponse],
// and a non-2xx status yields a [*StatusError].
//
// Authenticated calls take a [TokenSource] which is consulted once per
// outbound request, so a refreshed access token is picked up by the next
// call without any client-side caching. A nil TokenSource sends the request
// without an Authorization header.
//
// Endpoints:
//
//	GET  /conversations                      ListConversations
//	GET  /conversations/{id}/messages        GetMessages
//	POST /chat/stream                        OpenChatStream
//	GET  /tracked-bills                      ListTrackedBills
//	GET  /member/{bioguideId}                GetMember
//	GET  /bill/{congress}/{type}/{number}    GetBill
//	GET  /health                             Health
package api

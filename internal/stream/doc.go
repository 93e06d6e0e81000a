// Package stream decodes the assistant's streamed reply.
//
// The backend answers POST /chat/stream with a chunked plain-text body. A
// [Decoder] turns raw body reads into text chunks, holding back the tail of
// a multi-byte UTF-8 sequence until the rest of it arrives so a rune split
// across network reads is never mangled.
//
// The reply may end with one or more intel packets:
//
//	[INTEL_PACKET: Title | Content |END_PACKET]
//
// [ExtractIntel] removes them from the text and returns them separately.
package stream

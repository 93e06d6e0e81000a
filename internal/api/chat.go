// ABOUTME: Streaming chat endpoint returning incrementally decoded assistant text
// ABOUTME: Exposes the conversation id assigned by the backend via X-Conversation-Id

package api

import (
	"context"
	"io"
	"net/http"

	"github.com/2389/cosint-web/internal/stream"
)

// ConversationIDHeader carries the id of the conversation a stream belongs to.
const ConversationIDHeader = "X-Conversation-Id"

// ChatStream is an open assistant reply. Close must be called when done.
type ChatStream struct {
	// ConversationID is the value of the X-Conversation-Id header, or "".
	ConversationID string

	body io.ReadCloser
	dec  *stream.Decoder
}

// NewChatStream wraps an already-open body.
func NewChatStream(conversationID string, body io.ReadCloser) *ChatStream {
	return &ChatStream{
		ConversationID: conversationID,
		body:           body,
		dec:            stream.NewDecoder(body),
	}
}

// Next returns the next decoded chunk, or "", io.EOF once the reply is complete.
func (s *ChatStream) Next() (string, error) {
	return s.dec.Next()
}

// Close releases the underlying connection.
func (s *ChatStream) Close() error {
	return s.body.Close()
}

// OpenChatStream posts req to /chat/stream and returns the open reply.
// The stream lives as long as ctx; no client timeout applies.
func (c *Client) OpenChatStream(ctx context.Context, tokens TokenSource, req ChatRequest) (*ChatStream, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/stream", req, tokens)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := c.do(c.streamHTTP, httpReq)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("chat stream opened", "conversation_id", resp.Header.Get(ConversationIDHeader))
	return NewChatStream(resp.Header.Get(ConversationIDHeader), resp.Body), nil
}

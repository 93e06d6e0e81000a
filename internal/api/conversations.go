// ABOUTME: Conversation history and tracked-bill listing endpoints
// ABOUTME: Responses are validated before they reach the registry or chat session

package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListConversations returns the user's conversations in server order.
func (c *Client) ListConversations(ctx context.Context, tokens TokenSource) ([]Conversation, error) {
	var convs []Conversation
	if err := c.getJSON(ctx, "/conversations", tokens, &convs); err != nil {
		return nil, err
	}
	if convs == nil {
		return nil, fmt.Errorf("%w: conversations is not a list", ErrMalformedResponse)
	}
	if err := validateConversations(convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetMessages returns the stored transcript of one conversation.
func (c *Client) GetMessages(ctx context.Context, tokens TokenSource, conversationID string) ([]Message, error) {
	var msgs []Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.getJSON(ctx, path, tokens, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		return nil, fmt.Errorf("%w: messages is not a list", ErrMalformedResponse)
	}
	if err := validateMessages(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListTrackedBills returns the bills the user is tracking in server order.
func (c *Client) ListTrackedBills(ctx context.Context, tokens TokenSource) ([]TrackedBill, error) {
	var bills []TrackedBill
	if err := c.getJSON(ctx, "/tracked-bills", tokens, &bills); err != nil {
		return nil, err
	}
	if bills == nil {
		return nil, fmt.Errorf("%w: tracked bills is not a list", ErrMalformedResponse)
	}
	if err := validateTrackedBills(bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// ABOUTME: Member and bill bundle endpoints backed by an optional response cache
// ABOUTME: Cached bodies are re-validated before use and refreshed on miss

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// GetMember returns the dashboard bundle for a legislator.
func (c *Client) GetMember(ctx context.Context, tokens TokenSource, bioguideID string) (*MemberBundle, error) {
	if bioguideID == "" {
		return nil, fmt.Errorf("bioguide id is required")
	}
	path := "/member/" + url.PathEscape(bioguideID)
	return fetchBundle[MemberBundle](ctx, c, "member:"+bioguideID, path, tokens)
}

// GetBill returns the bundle for one bill, e.g. (118, "hr", "1234").
func (c *Client) GetBill(ctx context.Context, tokens TokenSource, congress int, billType, number string) (*BillBundle, error) {
	if congress <= 0 || billType == "" || number == "" {
		return nil, fmt.Errorf("congress, bill type and number are required")
	}
	billType = strings.ToLower(billType)
	path := fmt.Sprintf("/bill/%d/%s/%s", congress, url.PathEscape(billType), url.PathEscape(number))
	key := fmt.Sprintf("bill:%d:%s:%s", congress, billType, number)
	return fetchBundle[BillBundle](ctx, c, key, path, tokens)
}

// fetchBundle returns the cached body for key when it is still valid,
// otherwise fetches path, validates it and stores the raw body.
func fetchBundle[T any, P interface {
	*T
	Validate() error
}](ctx context.Context, c *Client, key, path string, tokens TokenSource) (*T, error) {
	if c.cache != nil {
		if data, err := c.cache.GetCached(ctx, key); err == nil {
			var cached T
			if json.Unmarshal(data, &cached) == nil && P(&cached).Validate() == nil {
				c.logger.Debug("bundle cache hit", "key", key)
				return &cached, nil
			}
			c.logger.Warn("discarding invalid cached bundle", "key", key)
		}
	}

	data, err := c.getRaw(ctx, path, tokens)
	if err != nil {
		return nil, err
	}
	var out T
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	if err := P(&out).Validate(); err != nil {
		return nil, err
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.PutCached(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Warn("failed to cache bundle", "key", key, "error", err)
		}
	}
	return &out, nil
}

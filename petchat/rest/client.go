package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/sync/singleflight"
)

// directCacheTTL bounds how long a peer->conversation mapping is reused
// before asking the server again. The endpoint is idempotent server-side,
// so a short client cache only saves round trips.
const directCacheTTL = 5 * time.Minute

// Client provides REST API access to the clinic chat backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	direct      singleflight.Group
	directCache geche.Geche[string, Conversation]
}

// NewClient creates a new REST API client. ctx bounds the lifetime of the
// internal cache janitor; cancel it when the session ends. baseURL should
// be the base URL of the API, e.g. "http://localhost:8080/api".
func NewClient(ctx context.Context, baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		directCache: geche.NewMapTTLCache[string, Conversation](ctx, directCacheTTL, time.Minute),
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the bearer credential for authenticated requests. An
// empty token leaves requests unauthenticated (guest reads).
func (c *Client) SetToken(token string) {
	c.token = token
}

// ListConversations returns one page of the authenticated user's
// conversation list, most recent first.
func (c *Client) ListConversations(ctx context.Context, page, limit int) (*ConversationPage, error) {
	path := fmt.Sprintf("/conversations?page=%d&limit=%d", page, limit)
	var resp ConversationPage
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOrCreateConversation returns the direct thread with a peer, creating
// it on first use. The endpoint is idempotent; concurrent calls for the
// same peer are collapsed into one request and results are cached briefly.
func (c *Client) GetOrCreateConversation(ctx context.Context, peerID string) (*Conversation, error) {
	if cached, err := c.directCache.Get(peerID); err == nil {
		return &cached, nil
	}

	v, err, _ := c.direct.Do(peerID, func() (any, error) {
		var resp Conversation
		if err := c.post(ctx, "/conversations/direct", DirectConversationRequest{UserID: peerID}, &resp); err != nil {
			return nil, err
		}
		c.directCache.Set(peerID, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	conv := v.(Conversation)
	return &conv, nil
}

// ListMessages retrieves one page of a conversation's history. The server
// returns newest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) (*MessagePage, error) {
	path := fmt.Sprintf("/conversations/%s/messages?page=%d&limit=%d",
		url.PathEscape(conversationID), page, limit)
	var resp MessagePage
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUsers returns candidate users to start a chat with, filterable by
// role and search text. Empty filters return everyone.
func (c *Client) ListUsers(ctx context.Context, role, search string) ([]User, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", role)
	}
	if search != "" {
		q.Set("search", search)
	}
	path := "/users"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var resp []User
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteMessage soft-deletes a message for the calling viewer only.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.del(ctx, "/messages/"+url.PathEscape(messageID))
}

// ArchiveConversation sets or clears a conversation's archived flag.
func (c *Client) ArchiveConversation(ctx context.Context, conversationID string, archived bool) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/archive"
	return c.post(ctx, path, ArchiveRequest{Archived: archived}, nil)
}

// ClearConversations removes every conversation for the calling user.
func (c *Client) ClearConversations(ctx context.Context) error {
	return c.del(ctx, "/conversations")
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	return c.do(req, dest)
}

func (c *Client) del(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	return c.do(req, nil)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("http error: %s (status %d)", string(body), resp.StatusCode)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Package remote implements the HTTP client for the Telos REST API boundary.
// The remote API is an external collaborator; this package only speaks its
// wire contract and maps failures onto the offline error taxonomy:
// transport failures become NETWORK_ERROR and non-success responses become
// REMOTE_REJECTED carrying a human-readable message.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/telos-app/telos-offline/internal/errors"
	"github.com/telos-app/telos-offline/internal/logging"
	"github.com/telos-app/telos-offline/internal/models"
)

// API is the remote boundary consumed by the sync engine and the offline
// save workflow.
type API interface {
	// ExtractContent asks the server to fetch, parse, and persist the item's
	// article content, returning the updated item.
	ExtractContent(ctx context.Context, itemID string) (*models.CachedItem, error)

	// ListHighlights returns the item's highlights.
	ListHighlights(ctx context.Context, itemID string) ([]models.CachedHighlight, error)

	// CreateHighlight creates a highlight.
	CreateHighlight(ctx context.Context, p models.CreateHighlightPayload) error

	// UpdateHighlight partially updates a highlight.
	UpdateHighlight(ctx context.Context, p models.UpdateHighlightPayload) error

	// DeleteHighlight deletes a highlight by identifier.
	DeleteHighlight(ctx context.Context, highlightID string) error

	// MarkItemRead partially updates an item's status to archived.
	MarkItemRead(ctx context.Context, itemID string) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the given API base URL. The session token
// is attached as a bearer credential on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// errorBody is the structured error shape the API returns on rejection.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one API call. A nil out skips response decoding.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if expired, ok := c.tokenExpired(); ok && expired {
		logging.Debug("Session token is past its expiry", map[string]interface{}{"path": path})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.New(apperrors.ErrRemoteRejected, rejectionMessage(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Wrap(apperrors.ErrRemoteRejected, "failed to decode response", err)
		}
	}
	return nil
}

// rejectionMessage extracts the server-provided error message, falling back
// to a generic message naming the HTTP status.
func rejectionMessage(resp *http.Response) string {
	var eb errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if json.Unmarshal(data, &eb) == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return fmt.Sprintf("Failed to fetch URL: %d", resp.StatusCode)
}

// ExtractContent implements API.
func (c *Client) ExtractContent(ctx context.Context, itemID string) (*models.CachedItem, error) {
	var item models.CachedItem
	path := fmt.Sprintf("/api/items/%s/extract", url.PathEscape(itemID))
	if err := c.do(ctx, http.MethodPost, path, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListHighlights implements API.
func (c *Client) ListHighlights(ctx context.Context, itemID string) ([]models.CachedHighlight, error) {
	var highlights []models.CachedHighlight
	path := "/api/highlights?item_id=" + url.QueryEscape(itemID)
	if err := c.do(ctx, http.MethodGet, path, nil, &highlights); err != nil {
		return nil, err
	}
	return highlights, nil
}

// CreateHighlight implements API.
func (c *Client) CreateHighlight(ctx context.Context, p models.CreateHighlightPayload) error {
	return c.do(ctx, http.MethodPost, "/api/highlights", p, nil)
}

// UpdateHighlight implements API.
func (c *Client) UpdateHighlight(ctx context.Context, p models.UpdateHighlightPayload) error {
	path := "/api/highlights/" + url.PathEscape(p.HighlightID)
	return c.do(ctx, http.MethodPatch, path, p, nil)
}

// DeleteHighlight implements API.
func (c *Client) DeleteHighlight(ctx context.Context, highlightID string) error {
	path := "/api/highlights/" + url.PathEscape(highlightID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// MarkItemRead implements API.
func (c *Client) MarkItemRead(ctx context.Context, itemID string) error {
	path := "/api/items/" + url.PathEscape(itemID)
	body := models.MarkItemReadPayload{ItemID: itemID, Status: models.ItemStatusArchived}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

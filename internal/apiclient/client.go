// Package apiclient talks to the disputes API on behalf of a signed-in user
// or moderator. It backs the aggregator and the moderation console.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

// APIError is an error response the client has no domain mapping for.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// DisputePage is one page of a dispute listing.
type DisputePage struct {
	Items      []domain.Dispute `json:"items"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

// Client implements the aggregator Source and Marker and the console
// backend over HTTP.
type Client struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// New constructs a client for baseURL authenticating with a bearer token.
func New(baseURL, token string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse api url: %q is not absolute", baseURL)
	}
	return &Client{
		baseURL: parsed,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.Named("apiclient"),
	}, nil
}

type itemsResponse struct {
	Items []domain.RawNotification `json:"items"`
}

// FetchSystem returns the system stream.
func (c *Client) FetchSystem(ctx context.Context) ([]domain.RawNotification, error) {
	return c.fetchStream(ctx, domain.StreamSystem)
}

// FetchRating returns the rating stream.
func (c *Client) FetchRating(ctx context.Context) ([]domain.RawNotification, error) {
	return c.fetchStream(ctx, domain.StreamRating)
}

func (c *Client) fetchStream(ctx context.Context, stream domain.Stream) ([]domain.RawNotification, error) {
	q := url.Values{}
	q.Set("stream", string(stream))
	var payload itemsResponse
	if err := c.do(ctx, http.MethodGet, "/notifications", q, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// MarkRead marks a notification read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/notifications/"+id+"/read", nil, nil, nil)
}

// MarkDisputed flags a rating notification as disputed.
func (c *Client) MarkDisputed(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/notifications/"+id+"/disputed", nil, nil, nil)
}

// UnreadCount returns the server-side unread count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var payload struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// ListDisputes returns one page of disputes with the given status.
func (c *Client) ListDisputes(ctx context.Context, status domain.DisputeStatus, limit int, cursor string) (DisputePage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page DisputePage
	if err := c.do(ctx, http.MethodGet, "/disputes", q, nil, &page); err != nil {
		return DisputePage{}, err
	}
	return page, nil
}

// GetDispute fetches one dispute.
func (c *Client) GetDispute(ctx context.Context, id string) (domain.Dispute, error) {
	var d domain.Dispute
	if err := c.do(ctx, http.MethodGet, "/disputes/"+id, nil, nil, &d); err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

// UpdateDisputeStatus approves or rejects a dispute.
func (c *Client) UpdateDisputeStatus(ctx context.Context, id string, action domain.Action) (domain.Dispute, error) {
	body := map[string]string{"action": string(action)}
	var d domain.Dispute
	if err := c.do(ctx, http.MethodPost, "/disputes/"+id+"/status", nil, body, &d); err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	rel := &url.URL{Path: c.baseURL.Path + path}
	if query != nil {
		rel.RawQuery = query.Encode()
	}
	endpoint := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	apiErr := decodeError(resp)
	if _, ok := apiErr.(*APIError); ok {
		c.logger.Warn("unexpected api response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
	}
	return apiErr
}

type errorResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// decodeError maps an error body back onto the domain error types.
func decodeError(resp *http.Response) error {
	var payload errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)

	switch payload.Code {
	case "VALIDATION_ERROR":
		var fields []string
		_ = json.Unmarshal(payload.Details, &fields)
		return &domain.ValidationError{Fields: fields}
	case "ALREADY_DISPUTED":
		var d struct {
			RatingRef     string `json:"ratingRef"`
			DisputedByRef string `json:"disputedByRef"`
		}
		_ = json.Unmarshal(payload.Details, &d)
		return &domain.AlreadyDisputedError{RatingRef: d.RatingRef, DisputedByRef: d.DisputedByRef}
	case "INVALID_STATE":
		var d struct {
			DisputeID string               `json:"disputeId"`
			Status    domain.DisputeStatus `json:"status"`
		}
		_ = json.Unmarshal(payload.Details, &d)
		return &domain.InvalidStateError{DisputeID: d.DisputeID, Status: d.Status}
	case "NOT_FOUND":
		var d struct {
			Kind string `json:"kind"`
			ID   string `json:"id"`
		}
		_ = json.Unmarshal(payload.Details, &d)
		return &domain.NotFoundError{Kind: d.Kind, ID: d.ID}
	default:
		return &APIError{StatusCode: resp.StatusCode, Code: payload.Code, Message: payload.Message}
	}
}

// Package client talks to the remote menu REST API.
//
// Every operation performs exactly one HTTP round trip and never retries;
// a failed call is reported once and it is up to the caller to try again.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/kitchen/pkg/logger"
	"github.com/mchmarny/kitchen/pkg/menu"
	"github.com/mchmarny/kitchen/pkg/metric"
)

const (
	// DefaultBaseURL is the menu collection endpoint used when none is configured.
	DefaultBaseURL = "http://localhost:5000/api/menus"

	// DefaultTimeout bounds a single round trip, including reading the body.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 10 << 20

	// maxErrorBodyBytes caps how much of an error body is kept for logging.
	maxErrorBodyBytes = 512
)

// Operation names used in errors, logs and metrics.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Client is a menu API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	newID      func() string
	counter    metric.IncrementalCounter
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL sets the collection endpoint, e.g. http://host/api/menus.
// A trailing slash is ignored.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRequestIDGenerator sets the generator for the X-Request-ID header. It is
// used only when the call context carries no request id.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) { c.newID = gen }
}

// WithCounter sets the counter incremented once per round trip with the
// operation and outcome labels.
func WithCounter(counter metric.IncrementalCounter) Option {
	return func(c *Client) { c.counter = counter }
}

// New creates a new menu API client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		newID:      logger.NewRequestID,
		counter:    metric.Noop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured collection endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches all menu items.
func (c *Client) List(ctx context.Context) ([]menu.Item, error) {
	var items []menu.Item
	if err := c.do(ctx, OpList, http.MethodGet, c.baseURL, nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []menu.Item{}
	}
	return items, nil
}

// Create sends the form payload and returns the item the server created.
func (c *Client) Create(ctx context.Context, data menu.FormData) (menu.Item, error) {
	var item menu.Item
	if err := c.do(ctx, OpCreate, http.MethodPost, c.baseURL, data, &item); err != nil {
		return menu.Item{}, err
	}
	return item, nil
}

// Update replaces the editable fields of item id and returns the refreshed item.
// An unknown id yields a ServerError (usually 404).
func (c *Client) Update(ctx context.Context, id int64, data menu.FormData) (menu.Item, error) {
	if id <= 0 {
		return menu.Item{}, fmt.Errorf("menu api %s: %w: %d", OpUpdate, ErrInvalidID, id)
	}

	var item menu.Item
	if err := c.do(ctx, OpUpdate, http.MethodPut, c.itemURL(id), data, &item); err != nil {
		return menu.Item{}, err
	}
	return item, nil
}

// Delete removes item id. Deleting an already deleted item is expected to fail.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("menu api %s: %w: %d", OpDelete, ErrInvalidID, id)
	}
	return c.do(ctx, OpDelete, http.MethodDelete, c.itemURL(id), nil, nil)
}

func (c *Client) itemURL(id int64) string {
	return c.baseURL + "/" + strconv.FormatInt(id, 10)
}

// do performs one round trip. A nil out discards the response body.
func (c *Client) do(ctx context.Context, op, method, url string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return c.fail(op, metric.OutcomeTransportError, &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)})
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return c.fail(op, metric.OutcomeTransportError, &TransportError{Op: op, Err: fmt.Errorf("new request: %w", err)})
	}

	reqID := logger.RequestID(ctx)
	if reqID == "" {
		reqID = c.newID()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(op, metric.OutcomeTransportError, &TransportError{Op: op, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Debug("menu api error response",
			"op", op,
			"status", resp.StatusCode,
			"request_id", reqID,
			"body", string(snippet))
		return c.fail(op, metric.OutcomeServerError, &ServerError{Op: op, StatusCode: resp.StatusCode})
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
			return c.fail(op, metric.OutcomeTransportError, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)})
		}
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	}

	c.counter.Increment(op, metric.OutcomeOK)
	slog.Debug("menu api call completed",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start))

	return nil
}

func (c *Client) fail(op, outcome string, err error) error {
	c.counter.Increment(op, outcome)
	return err
}

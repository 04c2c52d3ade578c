// internal/transport/client.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jason-s-yu/tablesync/internal/middleware"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every request. A hung call surfaces as a transient failure.
const DefaultTimeout = 8 * time.Second

const (
	HeaderUserID = "X-User-Id"
	HeaderAuth   = "Authorization"
)

// Identity supplies the caller identity attached to every authenticated request.
type Identity interface {
	Credentials() (userID, token string, err error)
}

// Client is a thin JSON request executor.
type Client struct {
	baseURL  string
	http     *http.Client
	identity Identity
	timeout  time.Duration
	logger   *logrus.Entry
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (request logging is not added to it).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for request logging.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, identity Identity, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: middleware.LogRoundTripper(c.logger, http.DefaultTransport),
		}
	}
	return c
}

// Do sends an authenticated request. body is JSON-encoded when non-nil and the
// reply is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.identity == nil {
		return ErrUnauthenticated
	}
	userID, token, err := c.identity.Credentials()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if userID == "" {
		return ErrUnauthenticated
	}
	headers := map[string]string{HeaderUserID: userID}
	if token != "" {
		headers[HeaderAuth] = "Bearer " + token
	}
	return c.send(ctx, method, path, headers, body, out)
}

// DoPublic sends a request without caller identity, e.g. to create a session.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, method, path, nil, body, out)
}

func (c *Client) send(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError turns a failed reply into *Error. Bodies that are not JSON objects
// still produce an error carrying the status.
func decodeError(status int, raw []byte) *Error {
	e := &Error{Status: status}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return e
	}
	if msg, ok := data["error"].(string); ok {
		e.Message = msg
	}
	delete(data, "error")
	if len(data) > 0 {
		e.Detail = data
	}
	return e
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/chatsync/internal/errors"
	"github.com/diogo/chatsync/internal/models"
)

// HTTPDoer is the part of the HTTP client the API needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the chat backend REST API
type Client struct {
	httpClient     HTTPDoer
	baseURL        string
	requestTimeout time.Duration
	logger         *slog.Logger
	mu             sync.RWMutex
	closed         bool
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient replaces the TLS client, mainly for tests
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithRequestTimeout bounds every REST call. Zero disables the bound.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithLogger sets the logger used by the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the backend rooted at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	client := &Client{
		baseURL:        baseURL,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}
	client.logger = client.logger.With("component", "api")

	if client.httpClient == nil {
		// Streams may stay open for minutes, so the transport itself has no
		// deadline; REST calls are bounded per request.
		options := []tls_client.HttpClientOption{
			tls_client.WithTimeoutSeconds(0),
			tls_client.WithClientProfile(profiles.Chrome_120),
		}

		httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		client.httpClient = httpClient
	}

	return client, nil
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close marks the client closed; later calls fail
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON performs one REST exchange. body, when non-nil, is sent as JSON;
// out, when non-nil, receives the decoded response.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.IsClosed() {
		return fmt.Errorf("client is closed")
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range models.DefaultHeaders() {
		req.Header.Set(key, value)
	}

	c.logger.Debug("request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apierrors.NewTimeoutError(method + " " + path)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierrors.NewNetworkError(method, path, err)
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierrors.NewAPIErrorWithBody(resp.StatusCode, resp.Status, path,
			strings.ToLower(method)+" request failed", readErrorBody(resp.Body))
	}

	if out == nil || resp.Body == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.NewNetworkError(method, path, err)
	}
	return decodeResponse(data, path, out)
}

// decodeResponse unmarshals a payload that is either the bare value or an
// envelope of the form {"data": value}.
func decodeResponse(data []byte, path string, out any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return apierrors.NewParseError("empty response body", path)
	}
	if !gjson.ValidBytes(data) {
		return apierrors.NewParseError("response is not valid JSON", path)
	}

	parsed := gjson.ParseBytes(data)
	if parsed.IsObject() {
		if inner := parsed.Get("data"); inner.Exists() {
			data = []byte(inner.Raw)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apierrors.NewParseError(err.Error(), path)
	}
	return nil
}

// readErrorBody reads at most MaxErrorBodyBytes for diagnostics
func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(body, models.MaxErrorBodyBytes))
	return strings.TrimSpace(string(data))
}

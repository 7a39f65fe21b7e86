package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// expiredMarker is the body fragment the API attaches to a 401 caused by
// credential expiry, as opposed to a 401 for a plain bad credential.
const expiredMarker = "token expired"

// Response is the outcome of a call that reached the remote and got an
// answer. A non-2xx status is reported here, not as a Go error, so callers
// can tell a remote rejection apart from a transport failure.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// APIError wraps a remote error status for callers that treat it as fatal.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workspace api error (%d) on %s %s: %s", e.Status, e.Method, e.Path, e.Body)
}

// Client is the resilient gateway to the workspace REST API. It attaches
// bearer credentials, refreshes them once on an expiry signal, and retries
// transport failures with exponential backoff.
type Client struct {
	baseURL     string
	tokens      TokenProvider
	httpClient  *http.Client
	retryConfig retry.Config
	logger      *slog.Logger
}

func NewClient(baseURL string, tokens TokenProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  250 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: logger,
	}
}

// Call performs one API call. Transport failures are retried up to the
// attempt budget; when the budget is exhausted the last error propagates
// unmodified. A 401 carrying the expiry marker triggers exactly one
// credential refresh and replay before the response is handed back.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	r := retry.New[*Response](c.retryConfig)
	return r.Do(ctx, func(ctx context.Context) (*Response, error) {
		resp, err := c.once(ctx, method, path, query, body)
		if err != nil {
			c.logger.Warn("workspace api transport failure",
				"method", method, "path", path, "error", err)
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && bytes.Contains(bytes.ToLower(resp.Body), []byte(expiredMarker)) {
			c.tokens.Invalidate()
			return c.once(ctx, method, path, query, body)
		}
		return resp, nil
	})
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: data}, nil
}

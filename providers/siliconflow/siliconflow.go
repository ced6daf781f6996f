// Package siliconflow is the HTTP transport to the SiliconFlow (硅基流动) API.
// It owns authentication headers, endpoint routing, bounded body reading and
// the mapping of non-2xx responses onto the error taxonomy.
// API Reference: https://docs.siliconflow.cn/
package siliconflow

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/sfnodes/internal/httputil"
	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/provider"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// API routes relative to the base URL.
const (
	ChatEndpoint      = "/chat/completions"
	EmbeddingEndpoint = "/embeddings"
	RerankEndpoint    = "/rerank"
	ModelsEndpoint    = "/models"
)

// Client sends requests to one SiliconFlow account.
// Client is safe for concurrent use; the item loop uses it sequentially.
type Client struct {
	baseURL          string
	apiKey           string
	httpClient       *http.Client
	limiter          *rate.Limiter
	maxResponseBytes int64
	headers          map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit paces outgoing requests to rps with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxResponseBytes caps response bodies. Zero or less disables the cap.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// New creates a transport for the given credentials. Credentials are
// normalized but not validated; callers validate them once per batch.
func New(creds provider.Credentials, opts ...Option) *Client {
	creds = creds.Normalized()
	c := &Client{
		baseURL: creds.BaseURL,
		apiKey:  creds.APIKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 60 * time.Second,
		},
		maxResponseBytes: httputil.DefaultMaxResponseBodyBytes,
		headers:          make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read API response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IsEventStream reports whether the body is an SSE stream. Some gateways in
// front of the API drop the content type, so the body is sniffed as well.
func (r *Response) IsEventStream() bool {
	if strings.HasPrefix(strings.ToLower(r.ContentType), "text/event-stream") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(r.Body), dataPrefix)
}

// Post sends payload to endpoint. model is only used to annotate errors.
func (c *Client) Post(ctx context.Context, endpoint string, payload []byte, model string) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), model)
}

// Get issues a GET to endpoint.
func (c *Client) Get(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil, "")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, model string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.NewNetworkError("rate limiter wait", err, false)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError("execute request", err, isTimeout(err))
	}
	defer resp.Body.Close()

	data, err := httputil.ReadLimitedBody(resp.Body, c.maxResponseBytes)
	if err != nil {
		if stderrors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, errors.NewMalformedResponseError(resp.StatusCode, model, err)
		}
		return nil, errors.NewNetworkError("read response", err, isTimeout(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, MapError(resp.StatusCode, data, model)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// maxErrorBodyPreview caps the bytes of a plain-text error body kept in messages.
const maxErrorBodyPreview = 200

// MapError converts an error response into a RemoteAPIError. It understands
// the OpenAI envelope ({"error":{"message":...}}) and SiliconFlow's flat
// envelope ({"code":20015,"message":...,"data":null}).
func MapError(statusCode int, body []byte, model string) error {
	message := ""
	for _, path := range []string{"error.message", "message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			message = v.String()
			break
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > maxErrorBodyPreview {
			cut := maxErrorBodyPreview
			for cut > 0 && !utf8.RuneStart(message[cut]) {
				cut--
			}
			message = message[:cut] + "..."
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Type == gjson.Number {
		message = fmt.Sprintf("%s (code %d)", message, code.Int())
	}

	return errors.NewRemoteAPIError(statusCode, model, message)
}

// DecodeJSON decodes a successful response body into v.
func DecodeJSON(resp *Response, model string, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return errors.NewMalformedResponseError(resp.StatusCode, model, err)
	}
	return nil
}

// ListModels fetches the account's model listing. It is also the credential probe.
func (c *Client) ListModels(ctx context.Context) (*types.ModelList, error) {
	resp, err := c.Get(ctx, ModelsEndpoint)
	if err != nil {
		return nil, err
	}

	var list types.ModelList
	if err := DecodeJSON(resp, "", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

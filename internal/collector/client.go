package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxResponseBodySize = 1 << 20 // 1MB

const defaultTimeout = 10 * time.Second

// connection pooling limits to prevent resource exhaustion when polling many nodes
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Request is one JSON-RPC call inside a [Client.Batch].
type Request struct {
	Method string
	Params []any
}

// rpcRequest is the JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Client is an HTTP client for polling node APIs.
//
// Every request gets its own timeout via context. Response bodies are
// limited to 1MB. When a rate limit is configured, each remote host gets
// its own token bucket so a slow target cannot starve the others.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout. Non-positive values keep the
// default of 10s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps requests per second to any single host.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limit = rate.Inf
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limit = rate.Limit(perSecond)
		c.burst = burst
	}
}

// NewClient creates a [Client] with a pooled transport.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			// no client-wide timeout, requests are bounded by context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		timeout:  defaultTimeout,
		limit:    rate.Inf,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get fetches url and returns the body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// Call performs a single JSON-RPC 2.0 call and returns its "result".
func (c *Client) Call(ctx context.Context, url, method string, params ...any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode %s request: %w", method, err)
	}

	body, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: %s: response is not valid JSON", ErrProtocol, method)
	}
	return rpcResult(method, gjson.ParseBytes(body))
}

// Batch sends calls as one JSON-RPC batch. Results are returned in the
// order of calls regardless of the order the node answers in. Any failed
// element fails the whole batch.
func (c *Client) Batch(ctx context.Context, url string, calls []Request) ([]gjson.Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	reqs := make([]rpcRequest, len(calls))
	for i, call := range calls {
		params := call.Params
		if params == nil {
			params = []any{}
		}
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: i, Method: call.Method, Params: params}
	}
	payload, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: batch response is not valid JSON", ErrProtocol)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: batch response is not an array", ErrProtocol)
	}

	elems := parsed.Array()
	if len(elems) != len(calls) {
		return nil, fmt.Errorf("%w: batch of %d calls got %d responses", ErrProtocol, len(calls), len(elems))
	}

	out := make([]gjson.Result, len(calls))
	seen := make([]bool, len(calls))
	for _, elem := range elems {
		id := elem.Get("id")
		if id.Type != gjson.Number {
			return nil, fmt.Errorf("%w: batch response without numeric id", ErrProtocol)
		}
		i := int(id.Int())
		if i < 0 || i >= len(calls) || seen[i] {
			return nil, fmt.Errorf("%w: unexpected batch response id %d", ErrProtocol, i)
		}
		res, err := rpcResult(calls[i].Method, elem)
		if err != nil {
			return nil, err
		}
		out[i] = res
		seen[i] = true
	}
	return out, nil
}

// rpcResult extracts "result" from one JSON-RPC response object.
func rpcResult(method string, resp gjson.Result) (gjson.Result, error) {
	if e := resp.Get("error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, fmt.Errorf("%w: %s: rpc error %d: %s",
			ErrProtocol, method, e.Get("code").Int(), e.Get("message").String())
	}
	res := resp.Get("result")
	if !res.Exists() || res.Type == gjson.Null {
		return gjson.Result{}, fmt.Errorf("%w: %s: missing result", ErrProtocol, method)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	if err := c.wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %v", ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}
	return data, nil
}

// wait blocks on the host's token bucket.
func (c *Client) wait(ctx context.Context, rawURL string) error {
	if c.limit == rate.Inf {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = l
	}
	c.mu.Unlock()

	return l.Wait(ctx)
}

// Close closes idle pooled connections. Safe to call multiple times and on
// a nil client; the client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

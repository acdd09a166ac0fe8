// Package httpclient provides the configured outbound HTTP client used by
// source adapters: base URL joining, default query params, custom headers,
// per-request timeout, optional proxy, secret-redacting URL logging, and
// submission through the per-host rate limiter.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/quotefeed/quotefeed/internal/ratelimit"
)

// StatusError indicates the upstream responded with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPStatus satisfies the rate limiter's retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// AsStatusError unwraps err to a StatusError if one is in the chain.
func AsStatusError(err error) (*StatusError, bool) {
	var st *StatusError
	ok := errors.As(err, &st)
	return st, ok
}

// Response is the raw outcome of a request. Body interpretation (JSON
// parsing, shape validation) is the adapter's responsibility.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client issues HTTP requests on behalf of one source adapter.
type Client struct {
	baseURL       *url.URL
	defaultParams url.Values
	headers       http.Header
	timeout       time.Duration
	hc            *http.Client
	limiter       *ratelimit.Limiter
	debug         bool
}

// Builder assembles a Client. Zero-value fields fall back to sane defaults.
type Builder struct {
	baseURL  string
	params   url.Values
	headers  http.Header
	timeout  time.Duration
	proxyURL string
	envProxy bool
	limiter  *ratelimit.Limiter
	debug    bool
}

// NewBuilder starts a client configuration.
func NewBuilder() *Builder {
	return &Builder{
		params:  url.Values{},
		headers: http.Header{},
	}
}

// BaseURL sets the base URL request paths are resolved against.
func (b *Builder) BaseURL(u string) *Builder { b.baseURL = u; return b }

// Param adds a default query parameter sent with every request.
// Caller-supplied params with the same key win.
func (b *Builder) Param(key, value string) *Builder { b.params.Set(key, value); return b }

// Header adds a header sent with every request.
func (b *Builder) Header(key, value string) *Builder { b.headers.Set(key, value); return b }

// Timeout sets the per-request timeout applied when the caller context has
// no deadline.
func (b *Builder) Timeout(d time.Duration) *Builder { b.timeout = d; return b }

// Proxy routes requests through the given proxy URL (http, https or socks5).
func (b *Builder) Proxy(u string) *Builder { b.proxyURL = u; return b }

// EnvProxy routes requests through the proxy named by HTTP_PROXY/HTTPS_PROXY.
// Without it (or an explicit Proxy) the client connects directly, so sources
// that opted out of proxying are unaffected by the process environment.
func (b *Builder) EnvProxy() *Builder { b.envProxy = true; return b }

// Limiter submits every request through the given rate limiter.
func (b *Builder) Limiter(l *ratelimit.Limiter) *Builder { b.limiter = l; return b }

// Debug enables request URL logging (secrets redacted).
func (b *Builder) Debug(on bool) *Builder { b.debug = on; return b }

// Build validates the configuration and returns the Client.
func (b *Builder) Build() (*Client, error) {
	c := &Client{
		defaultParams: b.params,
		headers:       b.headers,
		timeout:       b.timeout,
		limiter:       b.limiter,
		debug:         b.debug,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if b.baseURL != "" {
		u, err := url.Parse(b.baseURL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid base URL %q: %w", b.baseURL, err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("httpclient: base URL %q must be absolute", b.baseURL)
		}
		c.baseURL = u
	}

	transport, err := newTransport(b.proxyURL, b.envProxy)
	if err != nil {
		return nil, err
	}
	c.hc = &http.Client{Transport: transport}
	return c, nil
}

// Get issues a GET for path (absolute-URL semantics against the base URL)
// with the merged query params. The call is submitted through the limiter
// when one is configured, so retry policy and rate spacing apply here.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	target, err := c.resolve(path, params)
	if err != nil {
		return nil, err
	}

	if c.debug {
		log.Printf("[httpclient] GET %s", RedactURL(target))
	}

	var resp *Response
	do := func(ctx context.Context) error {
		var doErr error
		resp, doErr = c.doOnce(ctx, target)
		return doErr
	}

	if c.limiter != nil {
		err = c.limiter.Submit(ctx, do)
	} else {
		err = do(ctx)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) resolve(path string, params url.Values) (*url.URL, error) {
	var target *url.URL
	var err error
	if c.baseURL != nil {
		target, err = c.baseURL.Parse(path)
	} else {
		target, err = url.Parse(path)
	}
	if err != nil {
		return nil, fmt.Errorf("httpclient: resolve %q: %w", path, err)
	}

	q := target.Query()
	for key, vals := range c.defaultParams {
		if q.Get(key) == "" {
			for _, v := range vals {
				q.Add(key, v)
			}
		}
	}
	for key, vals := range params {
		q.Del(key)
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	target.RawQuery = q.Encode()
	return target, nil
}

func (c *Client) doOnce(ctx context.Context, target *url.URL) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	for key, vals := range c.headers {
		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}

	httpResp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: httpResp.StatusCode,
			URL:        RedactURL(target),
			Body:       body,
		}
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   body,
	}, nil
}

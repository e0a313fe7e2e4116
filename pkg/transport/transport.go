// Package transport is the single HTTP entry point every provider and
// the download engine issue requests through. It wraps
// hashicorp/go-retryablehttp with the retry/backoff policy and adds
// proxy dialing, custom headers and a consistent user agent.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/proxy"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
)

const defaultUserAgent = "soar-dl/1.0"

// Config controls how the shared client behaves.
type Config struct {
	// Timeout bounds a single request/response round trip; streamed
	// bodies are read outside of this timeout.
	Timeout time.Duration
	// ProxyURL is an http://, https:// or socks5:// proxy endpoint.
	ProxyURL string
	// Headers are merged onto every outbound request after any
	// provider-set auth header, so a user header can override the
	// default user agent but never an auth token.
	Headers http.Header
	// UserAgent overrides the default "soar-dl/1.0" identifier.
	UserAgent string
	// MaxRedirects caps how many redirects a single request follows.
	MaxRedirects int
}

// Client is the shared, retrying HTTP client.
type Client struct {
	inner     *retryablehttp.Client
	headers   http.Header
	userAgent string
}

// New builds a Client from cfg, applying spec-mandated retry
// parameters: an initial 500ms backoff doubling to a 30s ceiling
// across at most 4 retries, and never retrying a 4xx response.
func New(cfg Config) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 30 * time.Second
	rc.RetryMax = 4
	rc.CheckRetry = checkRetry
	rc.Backoff = retryablehttp.DefaultBackoff

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	httpClient := &http.Client{Timeout: timeout}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	if cfg.ProxyURL != "" {
		rt, err := buildProxyTransport(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("configuring proxy: %w", err)
		}
		httpClient.Transport = rt
	}

	rc.HTTPClient = httpClient

	headers := cfg.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{inner: rc, headers: headers, userAgent: userAgent}, nil
}

// buildProxyTransport builds an http.RoundTripper that dials through
// proxyURL, supporting socks5:// in addition to http(s):// schemes
// the stdlib already understands via http.Transport.Proxy.
func buildProxyTransport(proxyURL string) (http.RoundTripper, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "socks5" || u.Scheme == "socks5h" {
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}, nil
	}

	return &http.Transport{Proxy: http.ProxyURL(u)}, nil
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp == nil {
		return true, nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return false, nil
	}
	if resp.StatusCode == 0 || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func (c *Client) apply(req *http.Request) {
	for k, v := range c.headers {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// Do issues req through the retrying client, applying headers first.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	c.apply(req)
	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, &soarerrors.NetworkError{Op: "building request", Err: err, Transient: false}
	}
	resp, err := c.inner.Do(rreq)
	if err != nil {
		return nil, &soarerrors.NetworkError{Op: req.Method + " " + req.URL.String(), Err: err, Transient: true}
	}
	return resp, nil
}

// Get performs a plain GET and returns the raw response; the caller
// owns closing the body.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(ctx, req)
}

// Head performs a HEAD request.
func (c *Client) Head(ctx context.Context, rawURL string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(ctx, req)
}

// StreamRange performs a GET with an optional byte-range start, for
// resuming partial downloads.
func (c *Client) StreamRange(ctx context.Context, rawURL string, rangeStart int64, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if rangeStart > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
	}
	return c.Do(ctx, req)
}

// GetJSON performs a GET and decodes the JSON body into v, surfacing
// non-2xx status as a HttpError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers http.Header, v interface{}) error {
	resp, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &soarerrors.HttpError{URL: rawURL, Status: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	logger.V(4).Infof("GET %s -> %d", rawURL, resp.StatusCode)
	return nil
}

// PostJSON performs a POST with a JSON body, decoding the JSON
// response into out (which may be nil to discard the body).
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers http.Header, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &soarerrors.HttpError{URL: rawURL, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

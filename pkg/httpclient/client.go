package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/FranksOps/sift/pkg/useragent"
)

// ErrNilContext is returned by Do when called without a context.
var ErrNilContext = errors.New("httpclient: context cannot be nil")

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// UserAgents supplies the User-Agent header for requests that do not set
	// one. Nil means useragent.Default.
	UserAgents *useragent.Pool
	// Transport overrides the round tripper, e.g. for uTLS fingerprinting.
	Transport http.RoundTripper
}

// Client wraps http.Client with redirect, cookie and User-Agent policy.
type Client struct {
	*http.Client
	uas *useragent.Pool
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{Timeout: cfg.Timeout}

	if cfg.MaxRedirects >= 0 {
		max := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return fmt.Errorf("httpclient: stopped after %d redirects", max)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, uas: cfg.UserAgents}, nil
}

// Do executes req under ctx. The context controls cancellation independently
// of the client timeout. Requests without a User-Agent get one from the pool.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	out := req.Clone(ctx)
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.uas.Next())
	}

	resp, err := c.Client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s %s: %w", out.Method, out.URL.Redacted(), err)
	}
	return resp, nil
}

// Get is a convenience wrapper issuing a GET request for rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	return c.Do(ctx, req)
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/FranksOps/sift/pkg/proxy"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
	"github.com/google/uuid"
)

// ErrUnreachable is returned by Reachable when a site does not answer 200.
var ErrUnreachable = errors.New("scraper: site unreachable")

// maxBody caps how much of a response is kept in memory.
const maxBody = 8 << 20

type contextKey string

const proxyKey contextKey = "proxy_url"

// Page is the outcome of a single GET.
type Page struct {
	ID         string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	// Blocked names the bot manager whose challenge page came back, if any.
	Blocked   string
	FetchedAt time.Time
	// Error is non-empty if the fetch failed before a full response was read.
	Error string
}

// OK reports whether the page was fetched without error and with status 200.
func (p *Page) OK() bool {
	return p != nil && p.Error == "" && p.StatusCode == http.StatusOK
}

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// RespectRobots makes Fetch consult robots.txt before every request.
	RespectRobots bool
	// ProbeTimeout bounds Reachable. Defaults to 5s.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Fetcher performs single URL fetches. One Fetcher is shared by every stage so
// connections, cookies and the rate limiter are shared too.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	robots *RobotsTxtAuditor
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy for a request travels in its context so one transport can
	// rotate proxies per request.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{Proxy: proxyFunc})
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		UserAgents:   cfg.UAPool,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	f := &Fetcher{config: cfg, client: client, logger: cfg.Logger}
	if cfg.RespectRobots {
		f.robots = NewRobotsTxtAuditor(f.get, cfg.Logger)
	}
	return f, nil
}

// Fetch GETs targetURL. Transport failures are reported in Page.Error; the
// returned error is reserved for a done context.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if f.robots != nil {
		ua := f.config.UAPool.Next()
		allowed, err := f.robots.IsAllowed(ctx, targetURL, ua)
		if err != nil {
			return &Page{ID: uuid.NewString(), URL: targetURL, FetchedAt: time.Now().UTC(), Error: err.Error()}, nil
		}
		if !allowed {
			f.logger.Debug("robots.txt disallows fetch", "url", targetURL)
			return &Page{ID: uuid.NewString(), URL: targetURL, FetchedAt: time.Now().UTC(), Error: "disallowed by robots.txt"}, nil
		}
	}
	page := f.get(ctx, targetURL)
	if page.Error != "" && ctx.Err() != nil {
		return page, ctx.Err()
	}
	return page, nil
}

// Reachable probes rawURL with the probe timeout and reports ErrUnreachable
// unless it answers 200.
func (f *Fetcher) Reachable(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, f.config.ProbeTimeout)
	defer cancel()

	page := f.get(ctx, rawURL)
	if page.Error != "" {
		return fmt.Errorf("%w: %s", ErrUnreachable, page.Error)
	}
	if page.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnreachable, page.StatusCode)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, targetURL string) *Page {
	start := time.Now()
	page := &Page{
		ID:        uuid.NewString(),
		URL:       targetURL,
		FetchedAt: start.UTC(),
	}

	domain := targetURL
	if u, err := url.Parse(targetURL); err == nil && u.Host != "" {
		domain = u.Host
	}

	if err := f.config.Limiter.Wait(ctx); err != nil {
		page.Error = fmt.Sprintf("rate limiter: %v", err)
		return page
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		page.Error = fmt.Sprintf("build request: %v", err)
		return page
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		page.Error = err.Error()
		page.Duration = time.Since(start)
		metrics.RecordFetch(domain, 0, true, "", page.Duration, 0)
		return page
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		page.Error = fmt.Sprintf("read body: %v", err)
	}

	page.StatusCode = resp.StatusCode
	page.Header = resp.Header
	page.Body = body
	page.Duration = time.Since(start)
	page.Blocked = bypass.Detect(&bypass.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, bypass.DefaultSignatures())

	if page.Blocked != "" {
		f.logger.Warn("bot protection detected", "url", targetURL, "vendor", page.Blocked, "status", page.StatusCode)
	}
	metrics.RecordFetch(domain, page.StatusCode, page.Error != "", page.Blocked, page.Duration, len(body))
	return page
}

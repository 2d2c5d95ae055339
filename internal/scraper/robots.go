package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsTxtAuditor caches robots.txt per host and answers allow/deny.
// Concurrent lookups for one host share a single download; other hosts are
// not held up by it.
type RobotsTxtAuditor struct {
	get    func(context.Context, string) *Page
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates an auditor that downloads robots.txt with get.
func NewRobotsTxtAuditor(get func(context.Context, string) *Page, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		get:    get,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. A missing or
// unreadable robots.txt allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" {
		return false, fmt.Errorf("scraper: invalid url %q", targetURL)
	}

	data := r.lookup(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	return data.TestAgent(u.RequestURI(), userAgent), nil
}

func (r *RobotsTxtAuditor) lookup(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	data, ok := r.cache[host]
	r.mu.Unlock()
	if ok {
		return data
	}

	v, _, _ := r.group.Do(host, func() (any, error) {
		data := r.download(ctx, host)
		// A download cut short by the caller says nothing about the host.
		if ctx.Err() == nil {
			r.mu.Lock()
			r.cache[host] = data
			r.mu.Unlock()
		}
		return data, nil
	})
	return v.(*robotstxt.RobotsData)
}

func (r *RobotsTxtAuditor) download(ctx context.Context, host string) *robotstxt.RobotsData {
	page := r.get(ctx, host+"/robots.txt")
	if page.Error != "" {
		r.logger.Debug("robots.txt fetch failed, allowing", "host", host, "err", page.Error)
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		r.logger.Debug("robots.txt unparsable, allowing", "host", host, "err", err)
		return nil
	}
	return data
}

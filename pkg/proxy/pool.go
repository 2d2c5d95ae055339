package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never handed out.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool rotates outbound requests across a fixed set of proxies and benches
// proxies that keep failing.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines the health policy of a Pool.
type Config struct {
	// MaxFailures consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero config values get defaults of 3 failures
// and a 5 minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// Add parses proxy URLs and appends them to the rotation. A URL without a
// scheme is treated as http.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		p.entries = append(p.entries, &entry{url: u})
	}
	return nil
}

// Len reports the number of proxies in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not cooling down, or nil when the pool
// is empty or every proxy is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.disabledUntil.IsZero() && now.After(e.disabledUntil) {
			e.disabledUntil = time.Time{}
			e.failures = 0
		}
		if e.disabledUntil.IsZero() {
			return e.url
		}
	}
	return nil
}

// MarkSuccess forgives one failure of the given proxy.
func (p *Pool) MarkSuccess(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return ErrUnknownProxy
	}
	if e.failures > 0 {
		e.failures--
	}
	return nil
}

// MarkFailure records a failure and benches the proxy once it reaches the
// configured maximum.
func (p *Pool) MarkFailure(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return ErrUnknownProxy
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.disabledUntil = p.now().Add(p.cooldown)
	}
	return nil
}

func (p *Pool) find(u *url.URL) *entry {
	if u == nil {
		return nil
	}
	target := u.String()
	for _, e := range p.entries {
		if e.url.String() == target {
			return e
		}
	}
	return nil
}

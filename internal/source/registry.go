package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Builtins returns the built-in sources in their fixed search order.
func Builtins() []Source {
	return []Source{
		{Name: "realpython", Template: "https://realpython.com/search/?q={}", Rule: RuleRealPython},
		{Name: "medium", Template: "https://medium.com/search?q={}", Rule: RuleMedium},
		{Name: "stackoverflow", Template: "https://stackoverflow.com/search?q={}", Rule: RuleStackOverflow},
	}
}

// DefaultSiteURLs is the site list a subscriber starts with.
func DefaultSiteURLs() []string {
	b := Builtins()
	urls := make([]string, len(b))
	for i, s := range b {
		urls[i] = s.Prefix()
	}
	return urls
}

var siteURL = regexp.MustCompile(`^https?://[\w.-]+`)

// ValidateURL checks that raw looks like an http(s) site URL.
func ValidateURL(raw string) error {
	if !siteURL.MatchString(strings.TrimSpace(raw)) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Custom builds a rule-less source for a user-supplied site.
func Custom(rawURL string) Source {
	rawURL = strings.TrimSpace(rawURL)
	return Source{Name: rawURL, Template: rawURL + "?q={}", Rule: RuleNone}
}

// Registry is the process-wide, mutable set of sources searched when a
// caller has no site list of its own. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
}

// NewRegistry returns a registry holding the built-ins.
func NewRegistry() *Registry {
	return &Registry{sources: Builtins()}
}

// All returns a snapshot of the registered sources in search order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Add registers a custom source for rawURL. Adding a URL twice is a no-op.
func (r *Registry) Add(rawURL string) (Source, error) {
	return r.AddNamed("", rawURL)
}

// AddNamed is Add with a display name. An empty name defaults to the URL.
func (r *Registry) AddNamed(name, rawURL string) (Source, error) {
	if err := ValidateURL(rawURL); err != nil {
		return Source{}, err
	}
	src := Custom(rawURL)
	if name = strings.TrimSpace(name); name != "" {
		src.Name = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sources {
		if s.Name == src.Name {
			return s, nil
		}
	}
	r.sources = append(r.sources, src)
	return src, nil
}

// Lookup finds a registered source by name.
func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Resolve maps a stored site list onto sources. A URL equal to a built-in's
// search prefix or origin selects that built-in; any other URL becomes a
// custom source. Duplicates collapse to their first position.
func (r *Registry) Resolve(urls []string) []Source {
	builtins := Builtins()
	seen := make(map[string]struct{}, len(urls))
	out := make([]Source, 0, len(urls))

	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		src := Custom(raw)
		trimmed := strings.TrimSuffix(raw, "/")
		for _, b := range builtins {
			if raw == b.Prefix() || trimmed == b.Origin() {
				src = b
				break
			}
		}
		if s, ok := r.Lookup(src.Name); ok {
			src = s
		} else if s, ok := r.byTemplate(src.Template); ok {
			src = s
		}
		if _, dup := seen[src.Name]; dup {
			continue
		}
		seen[src.Name] = struct{}{}
		out = append(out, src)
	}
	return out
}

// SiteStore reads a subscriber's stored site list, materializing defaults on
// first read. storage.Store satisfies it.
type SiteStore interface {
	Sites(ctx context.Context, userID int64, defaults []string) ([]string, error)
}

// ForUser resolves the sources a subscriber searches: their own site list
// followed by every registered source that is not a built-in.
func (r *Registry) ForUser(ctx context.Context, store SiteStore, userID int64) ([]Source, error) {
	urls, err := store.Sites(ctx, userID, DefaultSiteURLs())
	if err != nil {
		return nil, fmt.Errorf("source: sites for %d: %w", userID, err)
	}

	out := r.Resolve(urls)
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		seen[s.Template] = struct{}{}
	}
	for _, s := range r.Extra() {
		if _, dup := seen[s.Template]; dup {
			continue
		}
		seen[s.Template] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// Extra returns the registered sources that are not built-ins, in order.
func (r *Registry) Extra() []Source {
	builtin := make(map[string]struct{})
	for _, b := range Builtins() {
		builtin[b.Name] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Source
	for _, s := range r.sources {
		if _, ok := builtin[s.Name]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) byTemplate(template string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		if s.Template == template {
			return s, true
		}
	}
	return Source{}, false
}

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsTxtAuditor_IsAllowed(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /
		`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{})
	auditor := NewRobotsTxtAuditor(fetcher.get, nil)
	ctx := context.Background()

	cases := []struct {
		path  string
		agent string
		want  bool
	}{
		{"/public-page", "GoodBot", true},
		{"/admin/secret", "GoodBot", false},
		{"/admin/public/index.html", "GoodBot", true},
		{"/public-page", "BadBot", false},
	}
	for _, c := range cases {
		allowed, err := auditor.IsAllowed(ctx, ts.URL+c.path, c.agent)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allowed != c.want {
			t.Errorf("%s as %s: expected allowed=%v", c.path, c.agent, c.want)
		}
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", n)
	}
}

func TestRobotsTxtAuditor_MissingRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{})
	auditor := NewRobotsTxtAuditor(fetcher.get, nil)

	allowed, err := auditor.IsAllowed(context.Background(), ts.URL+"/anything", "Bot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected missing robots.txt to default to allowed")
	}
}

func TestRobotsTxtAuditor_InvalidURL(t *testing.T) {
	auditor := NewRobotsTxtAuditor(func(context.Context, string) *Page { return &Page{} }, nil)
	if _, err := auditor.IsAllowed(context.Background(), "not a url", "Bot"); err == nil {
		t.Error("expected error for url without host")
	}
}

func TestRobotsTxtAuditor_SlowHostDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	get := func(ctx context.Context, rawURL string) *Page {
		if strings.HasPrefix(rawURL, "https://slow.example") {
			<-release
		}
		return &Page{StatusCode: http.StatusOK, Body: []byte("User-agent: *\nDisallow: /private/\n")}
	}
	auditor := NewRobotsTxtAuditor(get, nil)
	ctx := context.Background()

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = auditor.IsAllowed(ctx, "https://slow.example/page", "Bot")
	}()

	fast := make(chan bool)
	go func() {
		allowed, _ := auditor.IsAllowed(ctx, "https://fast.example/private/x", "Bot")
		fast <- allowed
	}()

	select {
	case allowed := <-fast:
		if allowed {
			t.Error("expected /private/ to be disallowed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lookup for one host waited on another host's robots.txt")
	}

	close(release)
	<-slowDone
}

func TestRobotsTxtAuditor_CanceledFetchNotCached(t *testing.T) {
	var calls atomic.Int32
	get := func(ctx context.Context, rawURL string) *Page {
		calls.Add(1)
		if err := ctx.Err(); err != nil {
			return &Page{Error: err.Error()}
		}
		return &Page{StatusCode: http.StatusOK, Body: []byte("User-agent: *\nDisallow: /\n")}
	}
	auditor := NewRobotsTxtAuditor(get, nil)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if allowed, _ := auditor.IsAllowed(canceled, "https://site.example/a", "Bot"); !allowed {
		t.Error("expected a failed download to allow")
	}

	allowed, err := auditor.IsAllowed(context.Background(), "https://site.example/a", "Bot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected robots.txt to be fetched again and disallow")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 downloads, got %d", n)
	}
}

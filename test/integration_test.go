//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/article"
	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/search"
	"github.com/FranksOps/sift/internal/source"
	"github.com/FranksOps/sift/internal/storage/sqlite"
	"github.com/FranksOps/sift/internal/summarizer"
	"github.com/FranksOps/sift/internal/sweep"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>%[1]s</title></head>
<body><article>
<h1>%[1]s</h1>
<p>Asyncio runs coroutines on a single event loop. Each await hands control back to the loop so other tasks can make progress while one waits on the network.</p>
<p>Tasks wrap coroutines and are scheduled as soon as they are created. Gathering several tasks lets a program wait on all of them at once without threads.</p>
<p>Blocking calls stall the whole loop, so slow work belongs in an executor. This keeps the event loop responsive for every other coroutine.</p>
</article></body></html>`

// rewriteFetcher points the hard-coded site origins at the local server.
type rewriteFetcher struct {
	*scraper.Fetcher
	origins map[string]string
}

func (f rewriteFetcher) Fetch(ctx context.Context, rawURL string) (*scraper.Page, error) {
	for from, to := range f.origins {
		if strings.HasPrefix(rawURL, from) {
			rawURL = to + strings.TrimPrefix(rawURL, from)
			break
		}
	}
	return f.Fetcher.Fetch(ctx, rawURL)
}

// localFinder ignores the subscriber's resolved sites and searches the local ones.
type localFinder struct {
	p       *pipeline.Pipeline
	sources []source.Source
}

func (f localFinder) Links(ctx context.Context, query string, _ []source.Source) []string {
	return f.p.Links(ctx, query, f.sources)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, _ string, links []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[userID] = append(n.sent[userID], links...)
	return nil
}

func TestIntegration_FindAndSweep(t *testing.T) {
	var searches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/so/search", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		fmt.Fprint(w, `<html><body>
			<div class="s-post-summary--content"><a class="s-link" href="/questions/1">Q1</a></div>
			<div class="s-post-summary--content"><a class="s-link" href="/questions/2">Q2</a></div>
		</body></html>`)
	})
	mux.HandleFunc("/rp/search/", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		fmt.Fprint(w, `<html><body>
			<h2 class="card-title"><a href="/async-io-python/">Async IO</a></h2>
			<h2 class="card-title"><a href="/python-concurrency/">Concurrency</a></h2>
		</body></html>`)
	})
	mux.HandleFunc("/questions/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, articlePage, "Question "+strings.TrimPrefix(r.URL.Path, "/questions/"))
	})
	mux.HandleFunc("/async-io-python/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, articlePage, "Async IO in Python")
	})
	mux.HandleFunc("/python-concurrency/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, articlePage, "Speed Up Your Python Program With Concurrency")
	})
	sites := httptest.NewServer(mux)
	defer sites.Close()

	var completions atomic.Int32
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		completions.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "Asyncio multiplexes coroutines on one event loop."}},
			},
		})
	}))
	defer ai.Close()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "sift.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	logger := slog.New(slog.DiscardHandler)
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout: 5 * time.Second,
		UAPool:  useragent.NewPool(useragent.Browsers...),
		Limiter: ratelimit.NewLimiter(100, 0.1),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	rewrite := rewriteFetcher{Fetcher: fetcher, origins: map[string]string{
		"https://stackoverflow.com": sites.URL,
		"https://realpython.com":    sites.URL,
	}}

	sources := []source.Source{
		{Name: "stackoverflow", Template: sites.URL + "/so/search?q={}", Rule: source.RuleStackOverflow},
		{Name: "realpython", Template: sites.URL + "/rp/search/?q={}", Rule: source.RuleRealPython},
	}

	responses := cache.New(store, cache.Config{Logger: logger})
	p := pipeline.New(
		search.NewSearcher(rewrite, logger),
		article.NewExtractor(rewrite, 4, logger),
		summarizer.New(summarizer.Config{APIKey: "sk-test", BaseURL: ai.URL + "/v1", Timeout: 5 * time.Second}, logger),
		responses,
		pipeline.Config{Logger: logger},
	)

	ctx := context.Background()
	out, err := p.Find(ctx, "asyncio", sources)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if out.Status != pipeline.StatusFound || out.Strategy != summarizer.StrategyAI {
		t.Fatalf("expected AI summary, got %+v", out)
	}
	wantLinks := []string{
		"https://stackoverflow.com/questions/1",
		"https://realpython.com/async-io-python/",
		"https://stackoverflow.com/questions/2",
		"https://realpython.com/python-concurrency/",
	}
	if strings.Join(out.Links, " ") != strings.Join(wantLinks, " ") {
		t.Errorf("expected round-robin links %v, got %v", wantLinks, out.Links)
	}
	if !strings.HasPrefix(out.Text, "🔎 *Query:* asyncio") {
		t.Errorf("unexpected response header: %q", out.Text)
	}
	if !strings.Contains(out.Text, "*Async IO in Python*") {
		t.Errorf("expected article title in response: %q", out.Text)
	}
	if !strings.HasSuffix(out.Text, "Asyncio multiplexes coroutines on one event loop.") {
		t.Errorf("expected AI conclusion at the end: %q", out.Text)
	}

	again, err := p.Find(ctx, "  asyncio ", sources)
	if err != nil {
		t.Fatalf("cached find failed: %v", err)
	}
	if again.Status != pipeline.StatusCached || again.Text != out.Text {
		t.Errorf("expected identical cached response, got %+v", again)
	}
	if n := searches.Load(); n != 2 {
		t.Errorf("expected one search per source, got %d", n)
	}
	if n := completions.Load(); n != 1 {
		t.Errorf("expected one completion, got %d", n)
	}

	if err := store.AddSubscription(ctx, 42, "asyncio"); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	notifier := &recordingNotifier{sent: make(map[int64][]string)}
	sweeper, err := sweep.New(store, source.NewRegistry(), localFinder{p: p, sources: sources}, notifier, responses, sweep.Config{Logger: logger})
	if err != nil {
		t.Fatalf("failed to create sweeper: %v", err)
	}

	rep, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if rep.Checked != 1 || rep.Notified != 1 {
		t.Errorf("unexpected first report %+v", rep)
	}
	if len(notifier.sent[42]) != len(wantLinks) {
		t.Errorf("expected every link delivered, got %v", notifier.sent[42])
	}

	rep, err = sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if rep.Notified != 0 {
		t.Errorf("expected no repeat notification, got %+v", rep)
	}
}

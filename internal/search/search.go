// Package search fans a query out to every source concurrently and merges the
// per-source link lists.
package search

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/FranksOps/sift/internal/parallel"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/source"
)

// PageFetcher downloads a single page. *scraper.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// Provider runs a query against a set of sources.
type Provider interface {
	Search(ctx context.Context, query string, sources []source.Source) Results
}

// Result is one source's answer to a query.
type Result struct {
	Source source.Source
	Links  []string
}

// Results holds one Result per searched source, in source order.
type Results []Result

// Lists returns the link lists in source order, ready for Interleave.
func (r Results) Lists() [][]string {
	out := make([][]string, len(r))
	for i, res := range r {
		out[i] = res.Links
	}
	return out
}

// ByName maps source name to its links.
func (r Results) ByName() map[string][]string {
	out := make(map[string][]string, len(r))
	for _, res := range r {
		out[res.Source.Name] = res.Links
	}
	return out
}

// Flatten concatenates every source's links in source order.
func (r Results) Flatten() []string {
	var out []string
	for _, res := range r {
		out = append(out, res.Links...)
	}
	return out
}

// Searcher is the HTTP-backed Provider.
type Searcher struct {
	fetcher   PageFetcher
	logger    *slog.Logger
	perSource int
}

// NewSearcher creates a Searcher. The fetcher should carry the search
// User-Agent and timeout.
func NewSearcher(fetcher PageFetcher, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{fetcher: fetcher, logger: logger}
}

// WithPerSource caps each source's list at n links (n <= 0 keeps what the
// extraction rule returns).
func (s *Searcher) WithPerSource(n int) *Searcher {
	s.perSource = n
	return s
}

// Search issues one GET per source in parallel and waits for all of them. A
// source that fails, answers non-200 or cannot be parsed contributes an empty
// list; the batch itself never fails.
func (s *Searcher) Search(ctx context.Context, query string, sources []source.Source) Results {
	results := parallel.Map(ctx, sources, 0, func(ctx context.Context, src source.Source) ([]string, error) {
		return s.searchOne(ctx, query, src), nil
	})

	out := make(Results, len(sources))
	for i, src := range sources {
		out[i] = Result{Source: src, Links: results[i].Value}
	}
	return out
}

func (s *Searcher) searchOne(ctx context.Context, query string, src source.Source) []string {
	target := src.SearchURL(query)
	log := s.logger.With("source", src.Name, "query", query)

	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		log.Warn("search aborted", "err", err)
		return nil
	}
	if page.Error != "" {
		log.Warn("search request failed", "url", target, "err", page.Error)
		return nil
	}
	if page.StatusCode != http.StatusOK {
		log.Warn("search returned non-200", "url", target, "status", page.StatusCode, "blocked", page.Blocked)
		return nil
	}

	links, err := src.ExtractHTML(bytes.NewReader(page.Body))
	if err != nil {
		log.Warn("search results unparsable", "err", err)
		return nil
	}
	if s.perSource > 0 && len(links) > s.perSource {
		links = links[:s.perSource]
	}
	log.Debug("search done", "links", len(links))
	return links
}

// Package pipeline runs the find operation end to end: cache lookup, search
// fan-out, round-robin merge, article extraction, summary, render and cache
// write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranksOps/sift/internal/article"
	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/render"
	"github.com/FranksOps/sift/internal/search"
	"github.com/FranksOps/sift/internal/source"
	"github.com/FranksOps/sift/internal/summarizer"
)

// ErrEmptyQuery is returned for a query that is blank after trimming.
var ErrEmptyQuery = errors.New("pipeline: empty query")

// Status is the terminal state of a find.
type Status int

const (
	// StatusCached means a fresh cached response was returned.
	StatusCached Status = iota
	// StatusFound means the pipeline ran and the response was cached.
	StatusFound
	// StatusNoLinks means no source yielded a candidate link.
	StatusNoLinks
	// StatusNoContent means no candidate link yielded a readable article.
	StatusNoContent
)

func (s Status) String() string {
	switch s {
	case StatusCached:
		return "cached"
	case StatusFound:
		return "found"
	case StatusNoLinks:
		return "no_links"
	case StatusNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

// Outcome is the result of Find. Text is set for StatusCached and StatusFound.
type Outcome struct {
	Status Status
	Text   string
	// Links holds the merged candidates; empty for cached outcomes.
	Links    []string
	Strategy summarizer.Strategy
	// Degraded is set when the AI summary failed and the extractive one was used.
	Degraded bool
}

// ArticleExtractor turns links into usable articles. *article.Extractor
// satisfies it.
type ArticleExtractor interface {
	ExtractAll(ctx context.Context, links []string) []article.Article
}

// Summarizer condenses article texts. *summarizer.Summarizer satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string, query string) summarizer.Result
}

// Config tunes a Pipeline.
type Config struct {
	// MaxLinks caps the merged candidate list. Defaults to search.DefaultCap.
	MaxLinks int
	Logger   *slog.Logger
}

// Pipeline is safe for concurrent use; it holds no per-call state.
type Pipeline struct {
	search     search.Provider
	articles   ArticleExtractor
	summarizer Summarizer
	cache      *cache.Cache
	maxLinks   int
	logger     *slog.Logger
}

// New wires a Pipeline.
func New(provider search.Provider, articles ArticleExtractor, sum Summarizer, c *cache.Cache, cfg Config) *Pipeline {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = search.DefaultCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		search:     provider,
		articles:   articles,
		summarizer: sum,
		cache:      c,
		maxLinks:   cfg.MaxLinks,
		logger:     cfg.Logger,
	}
}

// Find answers query from the cache or by running every stage. Only store
// failures and a done context are returned as errors; empty stages end in a
// no-results Status and leave the cache untouched.
func (p *Pipeline) Find(ctx context.Context, query string, sources []source.Source) (Outcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Outcome{}, ErrEmptyQuery
	}

	out, err := p.find(ctx, query, sources)
	if err != nil {
		metrics.RecordFind("error")
		return Outcome{}, err
	}
	metrics.RecordFind(out.Status.String())
	return out, nil
}

func (p *Pipeline) find(ctx context.Context, query string, sources []source.Source) (Outcome, error) {
	log := p.logger.With("query", query)

	if text, ok, err := p.cache.Get(ctx, query); err != nil {
		return Outcome{}, fmt.Errorf("pipeline: find: %w", err)
	} else if ok {
		log.Debug("cache hit")
		return Outcome{Status: StatusCached, Text: text}, nil
	}

	links := p.Links(ctx, query, sources)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if len(links) == 0 {
		log.Info("no links found", "sources", len(sources))
		return Outcome{Status: StatusNoLinks}, nil
	}
	log.Debug("links merged", "links", len(links))

	arts := p.articles.ExtractAll(ctx, links)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if len(arts) == 0 {
		log.Info("no readable articles", "links", len(links))
		return Outcome{Status: StatusNoContent, Links: links}, nil
	}
	log.Debug("articles extracted", "articles", len(arts))

	texts := make([]string, 0, len(arts))
	ideas := make([]render.Idea, 0, len(arts))
	for _, a := range arts {
		texts = append(texts, a.Body)
		ideas = append(ideas, render.NewIdea(a.Title, a.Body, a.URL))
	}

	sum := p.summarizer.Summarize(ctx, texts, query)
	text, err := render.ResponseText(render.Response{Query: query, Ideas: ideas, Conclusion: sum.Text})
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: find: %w", err)
	}

	if err := p.cache.Put(ctx, query, text); err != nil {
		return Outcome{}, fmt.Errorf("pipeline: find: %w", err)
	}

	return Outcome{
		Status:   StatusFound,
		Text:     text,
		Links:    links,
		Strategy: sum.Strategy,
		Degraded: sum.Degraded,
	}, nil
}

// Links runs the search fan-out and returns the round-robin merge, capped at
// MaxLinks. The sweep uses it without the extraction stages.
func (p *Pipeline) Links(ctx context.Context, query string, sources []source.Source) []string {
	results := p.search.Search(ctx, query, sources)
	return search.Interleave(results.Lists(), p.maxLinks)
}

// AllLinks runs the search fan-out and returns every link in source order,
// unmerged and uncapped.
func (p *Pipeline) AllLinks(ctx context.Context, query string, sources []source.Source) []string {
	return p.search.Search(ctx, query, sources).Flatten()
}

// Cached returns the fresh cached response for query, if any.
func (p *Pipeline) Cached(ctx context.Context, query string) (string, bool, error) {
	text, ok, err := p.cache.Get(ctx, strings.TrimSpace(query))
	if err != nil {
		return "", false, fmt.Errorf("pipeline: cached: %w", err)
	}
	return text, ok, nil
}

// Conclusion returns the conclusion of the cached response for query. ok is
// false when nothing fresh is cached.
func (p *Pipeline) Conclusion(ctx context.Context, query string) (string, bool, error) {
	text, ok, err := p.Cached(ctx, query)
	if err != nil || !ok {
		return "", false, err
	}
	conclusion, ok := render.ExtractConclusion(text)
	return conclusion, ok, nil
}

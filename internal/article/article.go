// Package article downloads candidate links and pulls out readable text.
package article

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/FranksOps/sift/internal/parallel"
	"github.com/FranksOps/sift/internal/scraper"
	readability "github.com/go-shiori/go-readability"
)

// ErrEmpty is returned when a page parses but yields no title or no text.
var ErrEmpty = errors.New("article: no readable content")

// PageFetcher downloads a single page. *scraper.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// Article is the readable content behind one link.
type Article struct {
	URL   string
	Title string
	Body  string
}

// Usable reports whether both title and body were extracted.
func (a Article) Usable() bool {
	return a.Title != "" && a.Body != ""
}

// Extractor turns links into Articles.
type Extractor struct {
	fetcher PageFetcher
	logger  *slog.Logger
	limit   int
}

// NewExtractor creates an Extractor running at most limit downloads at once
// (<= 0 means one per link).
func NewExtractor(fetcher PageFetcher, limit int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{fetcher: fetcher, logger: logger, limit: limit}
}

// Extract downloads rawURL and runs readability over it.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Article{}, fmt.Errorf("article: parse url: %w", err)
	}

	page, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Article{}, fmt.Errorf("article: fetch: %w", err)
	}
	if page.Error != "" {
		return Article{}, fmt.Errorf("article: fetch: %s", page.Error)
	}
	if page.StatusCode != http.StatusOK {
		return Article{}, fmt.Errorf("article: unexpected status %d", page.StatusCode)
	}

	parsed, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("article: parse content: %w", err)
	}

	a := Article{
		URL:   rawURL,
		Title: strings.TrimSpace(parsed.Title),
		Body:  normalize(parsed.TextContent),
	}
	if !a.Usable() {
		return a, ErrEmpty
	}
	return a, nil
}

// ExtractAll extracts every link in parallel and returns the usable articles
// in link order. Failures are logged and dropped.
func (e *Extractor) ExtractAll(ctx context.Context, links []string) []Article {
	results := parallel.Map(ctx, links, e.limit, e.Extract)

	out := make([]Article, 0, len(links))
	for i, r := range results {
		if r.Err != nil {
			e.logger.Warn("article extraction failed", "url", links[i], "err", r.Err)
			continue
		}
		out = append(out, r.Value)
	}
	return out
}

func normalize(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", " ")
	return strings.ReplaceAll(text, "\n", " ")
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranksOps/sift/internal/article"
	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/config"
	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/search"
	"github.com/FranksOps/sift/internal/source"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/FranksOps/sift/internal/storage/postgres"
	"github.com/FranksOps/sift/internal/storage/sqlite"
	"github.com/FranksOps/sift/internal/summarizer"
	"github.com/FranksOps/sift/pkg/proxy"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
)

// app holds the components shared by the subcommands.
type app struct {
	registry *source.Registry
	fetcher  *scraper.Fetcher
	cache    *cache.Cache
	pipeline *pipeline.Pipeline
}

func openStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.Storage.Driver {
	case "postgres":
		return postgres.New(ctx, c.Storage.DSN)
	case "sqlite":
		return sqlite.New(c.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
}

func newApp(c *config.Config, store storage.Store, logger *slog.Logger) (*app, error) {
	registry := source.NewRegistry()
	for _, s := range c.Sources {
		if _, err := registry.AddNamed(s.Name, s.URL); err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Name, err)
		}
	}

	profile, err := fingerprint.ParseProfile(c.Fetch.Fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if len(c.Fetch.Proxies) > 0 {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.Add(c.Fetch.Proxies...); err != nil {
			return nil, fmt.Errorf("proxies: %w", err)
		}
	}
	limiter := ratelimit.NewLimiter(c.Fetch.RequestsPerSecond, c.Fetch.Jitter)

	// Search pages get the fixed user agent; article pages rotate browsers.
	searchFetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     c.Search.Timeout,
		UAPool:      useragent.NewPool(c.Search.UserAgent),
		Fingerprint: profile,
		Limiter:     limiter,
		ProxyPool:   proxies,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	articleFetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:       c.Fetch.Timeout,
		UseCookieJar:  true,
		UAPool:        useragent.NewPool(useragent.Browsers...),
		Fingerprint:   profile,
		Limiter:       limiter,
		ProxyPool:     proxies,
		RespectRobots: c.Fetch.RespectRobots,
		ProbeTimeout:  c.Fetch.ProbeTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	var apiKey string
	if c.AIEnabled() {
		apiKey = c.AI.APIKey
	}
	sum := summarizer.New(summarizer.Config{
		APIKey:        apiKey,
		BaseURL:       c.AI.BaseURL,
		Model:         c.AI.Model,
		Timeout:       c.AI.Timeout,
		MaxInputChars: c.AI.MaxInputChars,
		MaxTokens:     c.AI.MaxTokens,
		Temperature:   c.AI.Temperature,
		MaxSentences:  c.Summary.MaxSentences,
	}, logger)

	responses := cache.New(store, cache.Config{
		TTL:                 c.Cache.TTL,
		RetentionMultiplier: c.Cache.RetentionMultiplier,
		Logger:              logger,
	})

	p := pipeline.New(
		search.NewSearcher(searchFetcher, logger).WithPerSource(c.Search.PerSource),
		article.NewExtractor(articleFetcher, c.Search.MaxLinks, logger),
		sum,
		responses,
		pipeline.Config{MaxLinks: c.Search.MaxLinks, Logger: logger},
	)

	return &app{
		registry: registry,
		fetcher:  articleFetcher,
		cache:    responses,
		pipeline: p,
	}, nil
}

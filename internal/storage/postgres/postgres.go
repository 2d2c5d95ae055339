package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/sift/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresStore implements storage.Store
var _ storage.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_query_created ON cache (query, created_at DESC);

CREATE TABLE IF NOT EXISTS user_sites (
	seq BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	site_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	seq BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	query TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS delivered_links (
	user_id BIGINT NOT NULL,
	query TEXT NOT NULL,
	link TEXT NOT NULL,
	delivered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, query, link)
);

CREATE TABLE IF NOT EXISTS user_languages (
	user_id BIGINT PRIMARY KEY,
	lang TEXT NOT NULL
);
`

// New connects to Postgres and applies the schema.
func New(ctx context.Context, dsn string) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) InsertCacheEntry(ctx context.Context, e storage.CacheEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache (id, query, response, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.Query, e.Response, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cache entry: %w", err)
	}
	return nil
}

func (s *postgresStore) LatestCacheEntry(ctx context.Context, query string) (storage.CacheEntry, error) {
	var e storage.CacheEntry
	err := s.pool.QueryRow(ctx,
		`SELECT id, query, response, created_at FROM cache
		 WHERE query = $1 ORDER BY created_at DESC, seq DESC LIMIT 1`, query,
	).Scan(&e.ID, &e.Query, &e.Response, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.CacheEntry{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CacheEntry{}, fmt.Errorf("postgres: latest cache entry: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *postgresStore) DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cache WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *postgresStore) Sites(ctx context.Context, userID int64, defaults []string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_url FROM user_sites WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query sites: %w", err)
	}
	sites, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan sites: %w", err)
	}
	if len(sites) > 0 || len(defaults) == 0 {
		return sites, nil
	}
	if err := s.ResetSites(ctx, userID, defaults); err != nil {
		return nil, err
	}
	return append([]string(nil), defaults...), nil
}

func (s *postgresStore) AddSite(ctx context.Context, userID int64, siteURL string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_sites (user_id, site_url)
		 SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM user_sites WHERE user_id = $1 AND site_url = $2)`,
		userID, siteURL,
	)
	if err != nil {
		return fmt.Errorf("postgres: add site: %w", err)
	}
	return nil
}

func (s *postgresStore) RemoveSite(ctx context.Context, userID int64, siteURL string) error {
	return s.deleteRows(ctx, "remove site",
		`DELETE FROM user_sites WHERE user_id = $1 AND site_url = $2`, userID, siteURL)
}

func (s *postgresStore) ResetSites(ctx context.Context, userID int64, defaults []string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_sites WHERE user_id = $1`, userID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, u := range defaults {
			batch.Queue(`INSERT INTO user_sites (user_id, site_url) VALUES ($1, $2)`, userID, u)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: reset sites: %w", err)
	}
	return nil
}

func (s *postgresStore) AddSubscription(ctx context.Context, userID int64, query string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (user_id, query) VALUES ($1, $2)`, userID, query)
	if err != nil {
		return fmt.Errorf("postgres: add subscription: %w", err)
	}
	return nil
}

func (s *postgresStore) RemoveSubscription(ctx context.Context, userID int64, query string) error {
	return s.deleteRows(ctx, "remove subscription",
		`DELETE FROM subscriptions WHERE user_id = $1 AND query = $2`, userID, query)
}

func (s *postgresStore) Subscriptions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT query FROM subscriptions WHERE user_id = $1 GROUP BY query ORDER BY MIN(seq)`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query subscriptions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan subscriptions: %w", err)
	}
	return subs, nil
}

func (s *postgresStore) AllSubscriptions(ctx context.Context) ([]storage.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, query FROM subscriptions GROUP BY user_id, query ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query all subscriptions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Subscription, error) {
		var sub storage.Subscription
		err := row.Scan(&sub.UserID, &sub.Query)
		return sub, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan subscriptions: %w", err)
	}
	return subs, nil
}

func (s *postgresStore) DeliveredLinks(ctx context.Context, userID int64, query string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT link FROM delivered_links WHERE user_id = $1 AND query = $2`, userID, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query delivered links: %w", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan delivered links: %w", err)
	}
	out := make(map[string]struct{}, len(links))
	for _, l := range links {
		out[l] = struct{}{}
	}
	return out, nil
}

func (s *postgresStore) MarkDelivered(ctx context.Context, userID int64, query string, links []string, at time.Time) error {
	if len(links) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range links {
		batch.Queue(`INSERT INTO delivered_links (user_id, query, link, delivered_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`, userID, query, l, at)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: mark delivered: %w", err)
	}
	return nil
}

func (s *postgresStore) Language(ctx context.Context, userID int64) (string, error) {
	var lang string
	err := s.pool.QueryRow(ctx,
		`SELECT lang FROM user_languages WHERE user_id = $1`, userID).Scan(&lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: language: %w", err)
	}
	return lang, nil
}

func (s *postgresStore) SetLanguage(ctx context.Context, userID int64, lang string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_languages (user_id, lang) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET lang = EXCLUDED.lang`, userID, lang)
	if err != nil {
		return fmt.Errorf("postgres: set language: %w", err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) deleteRows(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

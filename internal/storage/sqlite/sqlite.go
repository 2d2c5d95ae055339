package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/sift/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteStore implements storage.Store
var _ storage.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_query_created ON cache (query, created_at);

CREATE TABLE IF NOT EXISTS user_sites (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	site_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	query TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS delivered_links (
	user_id INTEGER NOT NULL,
	query TEXT NOT NULL,
	link TEXT NOT NULL,
	delivered_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, query, link)
);

CREATE TABLE IF NOT EXISTS user_languages (
	user_id INTEGER PRIMARY KEY,
	lang TEXT NOT NULL
);
`

// New opens (creating if needed) the SQLite database at dsn and applies the
// schema. Timestamps are stored as Unix nanoseconds.
func New(dsn string) (storage.Store, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; also keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) InsertCacheEntry(ctx context.Context, e storage.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (id, query, response, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Query, e.Response, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert cache entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) LatestCacheEntry(ctx context.Context, query string) (storage.CacheEntry, error) {
	var (
		e  storage.CacheEntry
		ns int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, query, response, created_at FROM cache
		 WHERE query = ? ORDER BY created_at DESC, seq DESC LIMIT 1`, query,
	).Scan(&e.ID, &e.Query, &e.Response, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CacheEntry{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CacheEntry{}, fmt.Errorf("sqlite: latest cache entry: %w", err)
	}
	e.CreatedAt = time.Unix(0, ns).UTC()
	return e, nil
}

func (s *sqliteStore) DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune cache: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) Sites(ctx context.Context, userID int64, defaults []string) ([]string, error) {
	sites, err := s.querySites(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sites) > 0 || len(defaults) == 0 {
		return sites, nil
	}
	if err := s.ResetSites(ctx, userID, defaults); err != nil {
		return nil, err
	}
	return append([]string(nil), defaults...), nil
}

func (s *sqliteStore) querySites(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_url FROM user_sites WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query sites: %w", err)
	}
	return scanStrings(rows, "sites")
}

func (s *sqliteStore) AddSite(ctx context.Context, userID int64, siteURL string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sites (user_id, site_url)
		 SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM user_sites WHERE user_id = ? AND site_url = ?)`,
		userID, siteURL, userID, siteURL,
	)
	if err != nil {
		return fmt.Errorf("sqlite: add site: %w", err)
	}
	return nil
}

func (s *sqliteStore) RemoveSite(ctx context.Context, userID int64, siteURL string) error {
	return s.deleteRows(ctx, "remove site",
		`DELETE FROM user_sites WHERE user_id = ? AND site_url = ?`, userID, siteURL)
}

func (s *sqliteStore) ResetSites(ctx context.Context, userID int64, defaults []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: reset sites: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_sites WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: reset sites: %w", err)
	}
	for _, u := range defaults {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_sites (user_id, site_url) VALUES (?, ?)`, userID, u); err != nil {
			return fmt.Errorf("sqlite: reset sites: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: reset sites: %w", err)
	}
	return nil
}

func (s *sqliteStore) AddSubscription(ctx context.Context, userID int64, query string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, query) VALUES (?, ?)`, userID, query)
	if err != nil {
		return fmt.Errorf("sqlite: add subscription: %w", err)
	}
	return nil
}

func (s *sqliteStore) RemoveSubscription(ctx context.Context, userID int64, query string) error {
	return s.deleteRows(ctx, "remove subscription",
		`DELETE FROM subscriptions WHERE user_id = ? AND query = ?`, userID, query)
}

func (s *sqliteStore) Subscriptions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM subscriptions WHERE user_id = ? GROUP BY query ORDER BY MIN(seq)`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query subscriptions: %w", err)
	}
	return scanStrings(rows, "subscriptions")
}

func (s *sqliteStore) AllSubscriptions(ctx context.Context) ([]storage.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, query FROM subscriptions GROUP BY user_id, query ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query all subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []storage.Subscription
	for rows.Next() {
		var sub storage.Subscription
		if err := rows.Scan(&sub.UserID, &sub.Query); err != nil {
			return nil, fmt.Errorf("sqlite: scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query all subscriptions: %w", err)
	}
	return subs, nil
}

func (s *sqliteStore) DeliveredLinks(ctx context.Context, userID int64, query string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT link FROM delivered_links WHERE user_id = ? AND query = ?`, userID, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query delivered links: %w", err)
	}
	links, err := scanStrings(rows, "delivered links")
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(links))
	for _, l := range links {
		out[l] = struct{}{}
	}
	return out, nil
}

func (s *sqliteStore) MarkDelivered(ctx context.Context, userID int64, query string, links []string, at time.Time) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: mark delivered: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range links {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO delivered_links (user_id, query, link, delivered_at) VALUES (?, ?, ?, ?)`,
			userID, query, l, at.UnixNano()); err != nil {
			return fmt.Errorf("sqlite: mark delivered: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: mark delivered: %w", err)
	}
	return nil
}

func (s *sqliteStore) Language(ctx context.Context, userID int64) (string, error) {
	var lang string
	err := s.db.QueryRowContext(ctx,
		`SELECT lang FROM user_languages WHERE user_id = ?`, userID).Scan(&lang)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: language: %w", err)
	}
	return lang, nil
}

func (s *sqliteStore) SetLanguage(ctx context.Context, userID int64, lang string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_languages (user_id, lang) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET lang = excluded.lang`, userID, lang)
	if err != nil {
		return fmt.Errorf("sqlite: set language: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) deleteRows(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanStrings(rows *sql.Rows, what string) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", what, err)
	}
	return out, nil
}

// Package memory is a process-local storage.Store, used by `sift find` and in
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type deliveryKey struct {
	userID int64
	query  string
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu        sync.RWMutex
	cache     []storage.CacheEntry
	sites     map[int64][]string
	subs      []storage.Subscription
	delivered map[deliveryKey]map[string]struct{}
	langs     map[int64]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sites:     make(map[int64][]string),
		delivered: make(map[deliveryKey]map[string]struct{}),
		langs:     make(map[int64]string),
	}
}

func (s *Store) InsertCacheEntry(_ context.Context, e storage.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = append(s.cache, e)
	return nil
}

func (s *Store) LatestCacheEntry(_ context.Context, query string) (storage.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  storage.CacheEntry
		found bool
	)
	for _, e := range s.cache {
		if e.Query != query {
			continue
		}
		// Later inserts win ties.
		if !found || !e.CreatedAt.Before(best.CreatedAt) {
			best, found = e, true
		}
	}
	if !found {
		return storage.CacheEntry{}, storage.ErrNotFound
	}
	return best, nil
}

func (s *Store) DeleteCacheEntriesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.cache)
	s.cache = slices.DeleteFunc(s.cache, func(e storage.CacheEntry) bool {
		return e.CreatedAt.Before(cutoff)
	})
	return int64(before - len(s.cache)), nil
}

func (s *Store) Sites(_ context.Context, userID int64, defaults []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sites[userID]) == 0 && len(defaults) > 0 {
		s.sites[userID] = slices.Clone(defaults)
	}
	return slices.Clone(s.sites[userID]), nil
}

func (s *Store) AddSite(_ context.Context, userID int64, siteURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.sites[userID], siteURL) {
		s.sites[userID] = append(s.sites[userID], siteURL)
	}
	return nil
}

func (s *Store) RemoveSite(_ context.Context, userID int64, siteURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.sites[userID])
	s.sites[userID] = slices.DeleteFunc(s.sites[userID], func(u string) bool { return u == siteURL })
	if len(s.sites[userID]) == before {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ResetSites(_ context.Context, userID int64, defaults []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[userID] = slices.Clone(defaults)
	return nil
}

func (s *Store) AddSubscription(_ context.Context, userID int64, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, storage.Subscription{UserID: userID, Query: query})
	return nil
}

func (s *Store) RemoveSubscription(_ context.Context, userID int64, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.subs)
	target := storage.Subscription{UserID: userID, Query: query}
	s.subs = slices.DeleteFunc(s.subs, func(sub storage.Subscription) bool { return sub == target })
	if len(s.subs) == before {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Subscriptions(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, sub := range s.subs {
		if sub.UserID == userID && !slices.Contains(out, sub.Query) {
			out = append(out, sub.Query)
		}
	}
	return out, nil
}

func (s *Store) AllSubscriptions(_ context.Context) ([]storage.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Subscription
	for _, sub := range s.subs {
		if !slices.Contains(out, sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) DeliveredLinks(_ context.Context, userID int64, query string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{})
	for l := range s.delivered[deliveryKey{userID, query}] {
		out[l] = struct{}{}
	}
	return out, nil
}

func (s *Store) MarkDelivered(_ context.Context, userID int64, query string, links []string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deliveryKey{userID, query}
	if s.delivered[key] == nil {
		s.delivered[key] = make(map[string]struct{})
	}
	for _, l := range links {
		s.delivered[key][l] = struct{}{}
	}
	return nil
}

func (s *Store) Language(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lang, ok := s.langs[userID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return lang, nil
}

func (s *Store) SetLanguage(_ context.Context, userID int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.langs[userID] = lang
	return nil
}

func (s *Store) Close() error { return nil }

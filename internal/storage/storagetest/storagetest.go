// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/storage"
)

var defaults = []string{
	"https://realpython.com/search/?q=",
	"https://medium.com/search?q=",
	"https://stackoverflow.com/search?q=",
}

// Run exercises s against the Store contract. s must start empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	t.Run("Cache", func(t *testing.T) { testCache(t, s) })
	t.Run("CachePrune", func(t *testing.T) { testCachePrune(t, s) })
	t.Run("Sites", func(t *testing.T) { testSites(t, s) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, s) })
	t.Run("Delivered", func(t *testing.T) { testDelivered(t, s) })
	t.Run("Language", func(t *testing.T) { testLanguage(t, s) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(t, s) })
}

func testCache(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.LatestCacheEntry(ctx, "asyncio"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty cache, got %v", err)
	}

	for i, resp := range []string{"first", "second"} {
		err := s.InsertCacheEntry(ctx, storage.CacheEntry{
			ID:        fmt.Sprintf("asyncio-%d", i),
			Query:     "asyncio",
			Response:  resp,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	// Same timestamp as "second": insertion order breaks the tie.
	if err := s.InsertCacheEntry(ctx, storage.CacheEntry{
		ID: "asyncio-2", Query: "asyncio", Response: "third", CreatedAt: base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("insert tie: %v", err)
	}
	if err := s.InsertCacheEntry(ctx, storage.CacheEntry{
		ID: "other-0", Query: "Asyncio", Response: "case differs", CreatedAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	got, err := s.LatestCacheEntry(ctx, "asyncio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Response != "third" || got.Query != "asyncio" {
		t.Errorf("expected most recent entry, got %+v", got)
	}
	if !got.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("expected created_at %v, got %v", base.Add(time.Minute), got.CreatedAt)
	}
}

func testCachePrune(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		err := s.InsertCacheEntry(ctx, storage.CacheEntry{
			ID:        fmt.Sprintf("prune-%d", i),
			Query:     "prune",
			Response:  fmt.Sprint(i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// Removes everything older than base+2h, including the earlier subtests' rows.
	n, err := s.DeleteCacheEntriesBefore(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n < 2 {
		t.Errorf("expected at least 2 rows pruned, got %d", n)
	}

	got, err := s.LatestCacheEntry(ctx, "prune")
	if err != nil || got.Response != "3" {
		t.Errorf("expected newest row to survive, got %+v %v", got, err)
	}

	n, err = s.DeleteCacheEntriesBefore(ctx, base.Add(2*time.Hour))
	if err != nil || n != 0 {
		t.Errorf("expected second prune to remove nothing, got %d %v", n, err)
	}
}

func testSites(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const user = int64(101)

	sites, err := s.Sites(ctx, user, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStrings(t, "lazy defaults", sites, defaults)

	if err := s.AddSite(ctx, user, "https://example.com"); err != nil {
		t.Fatalf("add site: %v", err)
	}
	if err := s.AddSite(ctx, user, "https://example.com"); err != nil {
		t.Fatalf("add duplicate site: %v", err)
	}
	sites, _ = s.Sites(ctx, user, defaults)
	assertStrings(t, "after add", sites, append(append([]string{}, defaults...), "https://example.com"))

	if err := s.RemoveSite(ctx, user, defaults[1]); err != nil {
		t.Fatalf("remove site: %v", err)
	}
	if err := s.RemoveSite(ctx, user, "https://missing.example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound removing unknown site, got %v", err)
	}
	sites, _ = s.Sites(ctx, user, defaults)
	assertStrings(t, "after remove", sites, []string{defaults[0], defaults[2], "https://example.com"})

	if err := s.ResetSites(ctx, user, defaults); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sites, _ = s.Sites(ctx, user, defaults)
	assertStrings(t, "after reset", sites, defaults)

	other, _ := s.Sites(ctx, user+1, nil)
	if len(other) != 0 {
		t.Errorf("expected empty list without defaults, got %v", other)
	}
}

func testSubscriptions(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for _, sub := range []storage.Subscription{
		{UserID: 1, Query: "go"},
		{UserID: 1, Query: "rust"},
		{UserID: 1, Query: "go"},
		{UserID: 2, Query: "go"},
	} {
		if err := s.AddSubscription(ctx, sub.UserID, sub.Query); err != nil {
			t.Fatalf("add subscription: %v", err)
		}
	}

	mine, err := s.Subscriptions(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStrings(t, "user subscriptions", mine, []string{"go", "rust"})

	all, err := s.AllSubscriptions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UserID != all[j].UserID {
			return all[i].UserID < all[j].UserID
		}
		return all[i].Query < all[j].Query
	})
	want := []storage.Subscription{{UserID: 1, Query: "go"}, {UserID: 1, Query: "rust"}, {UserID: 2, Query: "go"}}
	if fmt.Sprint(all) != fmt.Sprint(want) {
		t.Errorf("expected distinct pairs %v, got %v", want, all)
	}

	if err := s.RemoveSubscription(ctx, 1, "go"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveSubscription(ctx, 1, "go"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
	mine, _ = s.Subscriptions(ctx, 1)
	assertStrings(t, "after remove", mine, []string{"rust"})

	none, err := s.Subscriptions(ctx, 99)
	if err != nil || len(none) != 0 {
		t.Errorf("expected no subscriptions, got %v %v", none, err)
	}
}

func testDelivered(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := s.DeliveredLinks(ctx, 7, "go")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected nothing delivered, got %v %v", got, err)
	}

	if err := s.MarkDelivered(ctx, 7, "go", []string{"a", "b"}, now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkDelivered(ctx, 7, "go", []string{"b", "c"}, now); err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if err := s.MarkDelivered(ctx, 7, "go", nil, now); err != nil {
		t.Fatalf("mark nothing: %v", err)
	}

	got, _ = s.DeliveredLinks(ctx, 7, "go")
	if len(got) != 3 {
		t.Errorf("expected 3 delivered links, got %v", got)
	}
	for _, l := range []string{"a", "b", "c"} {
		if _, ok := got[l]; !ok {
			t.Errorf("expected %s delivered", l)
		}
	}

	other, _ := s.DeliveredLinks(ctx, 7, "rust")
	if len(other) != 0 {
		t.Errorf("expected delivered links scoped to query, got %v", other)
	}
}

func testLanguage(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.Language(ctx, 5); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetLanguage(ctx, 5, "uk"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetLanguage(ctx, 5, "en"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	lang, err := s.Language(ctx, 5)
	if err != nil || lang != "en" {
		t.Errorf("expected en, got %q %v", lang, err)
	}
}

func testConcurrentWrites(t *testing.T, s storage.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 40)

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- s.InsertCacheEntry(ctx, storage.CacheEntry{
				ID:        fmt.Sprintf("conc-%d", i),
				Query:     "concurrent",
				Response:  fmt.Sprint(i),
				CreatedAt: time.Now().UTC(),
			})
		}()
		go func() {
			defer wg.Done()
			_, err := s.LatestCacheEntry(ctx, "concurrent")
			if errors.Is(err, storage.ErrNotFound) {
				err = nil
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent access failed: %v", err)
		}
	}
}

func assertStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("%s: expected %v, got %v", what, want, got)
	}
}

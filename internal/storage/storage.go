package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup or delete matches no rows.
var ErrNotFound = errors.New("storage: not found")

// CacheEntry is one rendered find response. Entries are append-only; the most
// recent per query wins.
type CacheEntry struct {
	ID        string
	Query     string
	Response  string
	CreatedAt time.Time
}

// Subscription pairs a subscriber with a query swept on schedule.
type Subscription struct {
	UserID int64
	Query  string
}

// Store persists everything the bot keeps between restarts. Implementations
// must be safe for concurrent use.
type Store interface {
	InsertCacheEntry(ctx context.Context, e CacheEntry) error
	// LatestCacheEntry returns the newest entry for query or ErrNotFound.
	LatestCacheEntry(ctx context.Context, query string) (CacheEntry, error)
	// DeleteCacheEntriesBefore removes entries created before cutoff and
	// reports how many went.
	DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Sites returns the user's site list in insertion order. An empty list is
	// replaced by defaults, which are persisted before returning.
	Sites(ctx context.Context, userID int64, defaults []string) ([]string, error)
	// AddSite appends siteURL unless the user already has it.
	AddSite(ctx context.Context, userID int64, siteURL string) error
	// RemoveSite returns ErrNotFound if the user did not have siteURL.
	RemoveSite(ctx context.Context, userID int64, siteURL string) error
	// ResetSites replaces the user's list with defaults.
	ResetSites(ctx context.Context, userID int64, defaults []string) error

	AddSubscription(ctx context.Context, userID int64, query string) error
	// RemoveSubscription drops every copy of the pair, or returns ErrNotFound.
	RemoveSubscription(ctx context.Context, userID int64, query string) error
	// Subscriptions lists the user's distinct queries in first-subscribed order.
	Subscriptions(ctx context.Context, userID int64) ([]string, error)
	// AllSubscriptions lists distinct (user, query) pairs across all users.
	AllSubscriptions(ctx context.Context) ([]Subscription, error)

	// DeliveredLinks returns the links already sent for a subscription.
	DeliveredLinks(ctx context.Context, userID int64, query string) (map[string]struct{}, error)
	// MarkDelivered records links as sent. Re-marking a link is a no-op.
	MarkDelivered(ctx context.Context, userID int64, query string, links []string, at time.Time) error

	// Language returns the stored preference or ErrNotFound.
	Language(ctx context.Context, userID int64) (string, error)
	SetLanguage(ctx context.Context, userID int64, lang string) error

	Close() error
}

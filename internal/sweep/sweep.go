// Package sweep re-runs the search stages for every subscription on a
// schedule, notifies subscribers about links they have not seen yet and
// compacts the response cache.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/parallel"
	"github.com/FranksOps/sift/internal/source"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule    = "@every 24h"
	DefaultConcurrency = 4
)

// Notifier delivers fresh links to a subscriber.
type Notifier interface {
	Notify(ctx context.Context, userID int64, query string, links []string) error
}

// LinkFinder runs search fan-out and merge. *pipeline.Pipeline satisfies it.
type LinkFinder interface {
	Links(ctx context.Context, query string, sources []source.Source) []string
}

// Pruner compacts the response cache. *cache.Cache satisfies it.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Config tunes a Sweeper.
type Config struct {
	// Schedule is a cron spec; descriptors such as "@every 24h" are accepted.
	Schedule    string
	Concurrency int
	Logger      *slog.Logger
}

// Report summarizes one sweep.
type Report struct {
	Checked  int
	Notified int
	Failed   int
	Pruned   int64
}

// Sweeper owns the cron schedule. RunOnce may also be called directly.
type Sweeper struct {
	store    storage.Store
	registry *source.Registry
	finder   LinkFinder
	notifier Notifier
	pruner   Pruner
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New validates the schedule and creates a Sweeper. pruner may be nil.
func New(store storage.Store, registry *source.Registry, finder LinkFinder, notifier Notifier, pruner Pruner, cfg Config) (*Sweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("sweep: parse schedule %q: %w", cfg.Schedule, err)
	}
	return &Sweeper{
		store:    store,
		registry: registry,
		finder:   finder,
		notifier: notifier,
		pruner:   pruner,
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// Start schedules RunOnce. A run still in progress when the next tick fires
// makes that tick a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweep: already started")
	}

	l := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("sweep failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sweep: schedule: %w", err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("sweep scheduled", "schedule", s.cfg.Schedule)
	return nil
}

// Stop cancels future runs and waits for a running one to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

type result int

const (
	resultNone result = iota
	resultNotified
	resultFailed
)

// RunOnce sweeps every distinct subscription and then prunes the cache. A
// failing subscription never stops the others; the returned error is
// reserved for failing to list subscriptions.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	subs, err := s.store.AllSubscriptions(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("sweep: list subscriptions: %w", err)
	}

	results := parallel.Map(ctx, subs, s.cfg.Concurrency, func(ctx context.Context, sub storage.Subscription) (result, error) {
		return s.check(ctx, sub)
	})

	var rep Report
	for i, r := range results {
		rep.Checked++
		switch {
		case r.Err != nil:
			rep.Failed++
			metrics.SweepNotificationsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("subscription sweep failed", "user_id", subs[i].UserID, "query", subs[i].Query, "err", r.Err)
		case r.Value == resultNotified:
			rep.Notified++
			metrics.SweepNotificationsTotal.WithLabelValues("sent").Inc()
		}
	}

	if s.pruner != nil {
		n, err := s.pruner.Prune(ctx)
		if err != nil {
			s.logger.Warn("cache compaction failed", "err", err)
		}
		rep.Pruned = n
	}

	metrics.SweepRunsTotal.Inc()
	s.logger.Info("sweep done", "checked", rep.Checked, "notified", rep.Notified, "failed", rep.Failed, "pruned", rep.Pruned)
	return rep, nil
}

func (s *Sweeper) check(ctx context.Context, sub storage.Subscription) (result, error) {
	sources, err := s.registry.ForUser(ctx, s.store, sub.UserID)
	if err != nil {
		return resultFailed, err
	}

	links := s.finder.Links(ctx, sub.Query, sources)
	if len(links) == 0 {
		return resultNone, nil
	}

	delivered, err := s.store.DeliveredLinks(ctx, sub.UserID, sub.Query)
	if err != nil {
		return resultFailed, err
	}
	fresh := make([]string, 0, len(links))
	for _, l := range links {
		if _, ok := delivered[l]; !ok {
			fresh = append(fresh, l)
		}
	}
	if len(fresh) == 0 {
		s.logger.Debug("no new links", "user_id", sub.UserID, "query", sub.Query)
		return resultNone, nil
	}

	if err := s.notifier.Notify(ctx, sub.UserID, sub.Query, fresh); err != nil {
		return resultFailed, fmt.Errorf("sweep: notify: %w", err)
	}
	if err := s.store.MarkDelivered(ctx, sub.UserID, sub.Query, fresh, s.now().UTC()); err != nil {
		// The notification went out; a resend next sweep is the worst case.
		s.logger.Warn("failed to record delivered links", "user_id", sub.UserID, "query", sub.Query, "err", err)
	}
	return resultNotified, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

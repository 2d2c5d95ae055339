package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_fetch_requests_total",
			Help: "Total number of outbound page fetches",
		},
		[]string{"domain", "status", "detected"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_fetch_duration_seconds",
			Help:    "Duration of outbound page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	FindTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_find_total",
			Help: "Find requests by outcome",
		},
		[]string{"outcome"},
	)

	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_summaries_total",
			Help: "Summaries produced by strategy",
		},
		[]string{"strategy", "degraded"},
	)

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_sweep_runs_total",
		Help: "Completed subscription sweeps",
	})

	SweepNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_sweep_notifications_total",
			Help: "Subscription notifications by result",
		},
		[]string{"result"},
	)

	CachePrunedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_cache_pruned_rows_total",
		Help: "Cache rows removed by compaction",
	})
)

// RecordFetch updates the fetch collectors. status 0 with failed set means the
// request never produced a response.
func RecordFetch(domain string, status int, failed bool, detected string, d time.Duration, bytes int) {
	statusStr := strconv.Itoa(status)
	if failed {
		statusStr = "error"
	}
	FetchRequestsTotal.WithLabelValues(domain, statusStr, detected).Inc()
	FetchDuration.WithLabelValues(domain).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(domain).Add(float64(bytes))
}

// RecordFind counts one find by outcome.
func RecordFind(outcome string) {
	FindTotal.WithLabelValues(outcome).Inc()
}

// RecordSummary counts one summary.
func RecordSummary(strategy string, degraded bool) {
	SummariesTotal.WithLabelValues(strategy, strconv.FormatBool(degraded)).Inc()
}

// Router exposes /metrics and a /healthz probe.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start begins listening on addr and serves Router in the background.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

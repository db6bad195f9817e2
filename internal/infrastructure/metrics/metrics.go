// Package metrics exposes batch outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

const namespace = "competition_scanner"

// Observer implements ports.BatchObserver on its own registry.
type Observer struct {
	registry *prometheus.Registry

	items         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	lastBatchUnix prometheus.Gauge
}

var _ ports.BatchObserver = (*Observer)(nil)

// NewObserver registers the batch metrics on a fresh registry.
func NewObserver() *Observer {
	registry := prometheus.NewRegistry()
	auto := promauto.With(registry)

	return &Observer{
		registry: registry,
		items: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Processed images by outcome",
		}, []string{"outcome"}),
		failures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed pipeline steps by stage and reason",
		}, []string{"stage", "reason"}),
		batches: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Finished batch runs by outcome",
		}, []string{"outcome"}),
		batchDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastBatchUnix: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),
	}
}

func (o *Observer) ItemProcessed(outcome string) {
	o.items.WithLabelValues(outcome).Inc()
}

func (o *Observer) StepFailed(stage domain.Stage, reason domain.Reason) {
	o.failures.WithLabelValues(string(stage), string(reason)).Inc()
}

func (o *Observer) BatchFinished(outcome string, duration time.Duration) {
	o.batches.WithLabelValues(outcome).Inc()
	o.batchDuration.Observe(duration.Seconds())
	o.lastBatchUnix.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus text format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, observer *Observer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observer.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package metrics

/*
rxurls — URL discovery and aggregation for target domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x-stp/rxurls/internal/logging"
)

var (
	registry          = prometheus.NewRegistry()
	defaultRegisterer = promauto.With(registry)
	metricsEnabled    atomic.Bool

	serverMu      sync.Mutex
	metricsServer *http.Server
)

// Metrics contains the Prometheus collectors for a run.
type Metrics struct {
	// Pipeline metrics
	StageDuration     *prometheus.HistogramVec
	CandidatesTotal   *prometheus.CounterVec
	RecordsAdded      *prometheus.CounterVec
	AdapterFailures   *prometheus.CounterVec
	AdaptersSkipped   *prometheus.CounterVec
	DomainsProcessed  *prometheus.CounterVec
	DomainDuration    prometheus.Histogram
	IndexAppendsTotal prometheus.Counter
	StoreRecords      *prometheus.GaugeVec

	// Liveness metrics
	ProbeCacheHits prometheus.Counter
	ProbesTotal    *prometheus.CounterVec

	// Worker metrics
	WorkerBusy      *prometheus.GaugeVec
	WorkerProcessed *prometheus.CounterVec
	WorkerPanics    *prometheus.CounterVec
	QueueSize       *prometheus.GaugeVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

// EnableMetrics turns on collection.
func EnableMetrics() {
	metricsEnabled.Store(true)
}

// IsMetricsEnabled reports whether collection is on.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

func newMetrics() *Metrics {
	buckets := []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}

	return &Metrics{
		StageDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rxurls_stage_duration_seconds",
				Help:    "Time spent running one discovery adapter for one domain",
				Buckets: buckets,
			},
			[]string{"adapter", "status"},
		),
		CandidatesTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_candidates_total",
				Help: "Candidate lines emitted by adapters",
			},
			[]string{"adapter"},
		),
		RecordsAdded: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_records_added_total",
				Help: "Candidates that were new to the dedup store",
			},
			[]string{"adapter"},
		),
		AdapterFailures: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_adapter_failures_total",
				Help: "Adapter runs that failed or timed out",
			},
			[]string{"adapter", "reason"},
		),
		AdaptersSkipped: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_adapters_skipped_total",
				Help: "Adapter runs skipped for lack of seeds",
			},
			[]string{"adapter"},
		),
		DomainsProcessed: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_domains_processed_total",
				Help: "Domains processed, by outcome",
			},
			[]string{"outcome"},
		),
		DomainDuration: defaultRegisterer.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rxurls_domain_duration_seconds",
				Help:    "Wall time of a full domain pipeline",
				Buckets: buckets,
			},
		),
		IndexAppendsTotal: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "rxurls_index_appends_total",
				Help: "Entries appended to the run index",
			},
		),
		StoreRecords: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rxurls_store_records",
				Help: "Distinct records currently held by a domain's dedup store",
			},
			[]string{"domain"},
		),
		ProbeCacheHits: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "rxurls_probe_cache_hits_total",
				Help: "Domains whose liveness data was reused from cache",
			},
		),
		ProbesTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_probes_total",
				Help: "Liveness probes by result",
			},
			[]string{"result"},
		),
		WorkerBusy: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rxurls_worker_busy",
				Help: "Whether a worker is currently busy (1) or idle (0)",
			},
			[]string{"worker_id"},
		),
		WorkerProcessed: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_worker_processed_total",
				Help: "Work items processed by a worker",
			},
			[]string{"worker_id"},
		),
		WorkerPanics: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxurls_worker_panics_total",
				Help: "Panics recovered by a worker",
			},
			[]string{"worker_id"},
		),
		QueueSize: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rxurls_queue_size",
				Help: "Current size of worker queues",
			},
			[]string{"worker_id"},
		),
	}
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics on addr. It returns once the listener is
// bound, so a bad address surfaces as a setup error. Calling it while a server
// is running is a no-op.
func StartMetricsServer(addr string) error {
	if !IsMetricsEnabled() {
		return nil
	}
	serverMu.Lock()
	defer serverMu.Unlock()
	if metricsServer != nil {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer = srv

	go func() {
		logging.Logger.Infof("Starting metrics server on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Errorf("Metrics server error: %v", err)
		}
	}()
	return nil
}

// ShutdownMetricsServer gracefully stops the metrics server, if any.
func ShutdownMetricsServer(ctx context.Context) error {
	serverMu.Lock()
	srv := metricsServer
	metricsServer = nil
	serverMu.Unlock()
	if srv == nil {
		return nil
	}
	logging.Logger.Info("Shutting down metrics server...")
	return srv.Shutdown(ctx)
}

// MeasureDuration starts a timer; the returned func observes the elapsed
// time with labels. It is a no-op when metrics are disabled.
func MeasureDuration(histogram *prometheus.HistogramVec, labels prometheus.Labels) func() {
	if !IsMetricsEnabled() {
		return func() {}
	}
	start := time.Now()
	return func() {
		histogram.With(labels).Observe(time.Since(start).Seconds())
	}
}

// ObserveStage records the outcome of one adapter run for one domain.
func (m *Metrics) ObserveStage(adapter string, elapsed time.Duration, candidates, added int, failure string) {
	if !IsMetricsEnabled() {
		return
	}
	status := "ok"
	if failure != "" {
		status = "failed"
		m.AdapterFailures.WithLabelValues(adapter, failure).Inc()
	}
	m.StageDuration.WithLabelValues(adapter, status).Observe(elapsed.Seconds())
	m.CandidatesTotal.WithLabelValues(adapter).Add(float64(candidates))
	m.RecordsAdded.WithLabelValues(adapter).Add(float64(added))
}

// ObserveDomain records the outcome of one domain pipeline.
func (m *Metrics) ObserveDomain(outcome string, elapsed time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	m.DomainsProcessed.WithLabelValues(outcome).Inc()
	m.DomainDuration.Observe(elapsed.Seconds())
}

// SetWorkerBusy flags a worker as busy or idle.
func (m *Metrics) SetWorkerBusy(workerID int, busy bool) {
	if !IsMetricsEnabled() {
		return
	}
	v := 0.0
	if busy {
		v = 1
	}
	m.WorkerBusy.WithLabelValues(strconv.Itoa(workerID)).Set(v)
}

// UpdateQueueSize sets the queue size gauge for a worker.
func (m *Metrics) UpdateQueueSize(workerID, size int) {
	if !IsMetricsEnabled() {
		return
	}
	m.QueueSize.WithLabelValues(strconv.Itoa(workerID)).Set(float64(size))
}

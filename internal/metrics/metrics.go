package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qaraa/printd/internal/log"
	"github.com/qaraa/printd/internal/store"
)

var statuses = []store.JobStatus{
	store.StatusPending,
	store.StatusProcessing,
	store.StatusCompleted,
	store.StatusFailed,
}

type Metrics struct {
	JobsEnqueued  *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsRetried   *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec

	registry *prometheus.Registry
	store    *store.Store
	logger   *log.Logger
}

func New(registry *prometheus.Registry, st *store.Store, logger *log.Logger) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printd_jobs_enqueued_total",
				Help: "Total number of enqueued print jobs",
			},
			[]string{"type"},
		),
		JobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printd_jobs_completed_total",
				Help: "Total number of successfully printed jobs",
			},
			[]string{"type"},
		),
		JobsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printd_jobs_failed_total",
				Help: "Total number of terminally failed jobs",
			},
			[]string{"type"},
		),
		JobsRetried: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printd_jobs_retried_total",
				Help: "Total number of failed attempts that re-entered the queue",
			},
			[]string{"type"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "printd_queue_depth",
				Help: "Number of jobs per status",
			},
			[]string{"status"},
		),
		registry: registry,
		store:    st,
		logger:   logger,
	}

	registry.MustRegister(
		m.JobsEnqueued,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsRetried,
		m.QueueDepth,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Run keeps the queue depth gauge in sync with the store.
func (m *Metrics) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Metrics collection shutting down")
			return
		case <-ticker.C:
			counts, err := m.store.CountByStatus(ctx)
			if err != nil {
				m.logger.Error("Failed to count jobs for metrics", zap.Error(err))
				continue
			}
			for _, status := range statuses {
				m.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
			}
		}
	}
}

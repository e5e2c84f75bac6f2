package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка (включая бридж)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Эффективность дедупа
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// Audit: заполненность буфера трейла (backpressure)
	TrailBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tonebridge_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"endpoint", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tonebridge_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"endpoint"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tonebridge_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: validation, integrity, method, upstream, timeout, too_large

		CacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tonebridge_dedup_hits_total",
			Help: "Requests answered from the dedup cache.",
		}),

		CacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tonebridge_dedup_misses_total",
			Help: "Requests that reached the upstream analyzer.",
		}),

		CacheSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "tonebridge_dedup_entries",
			Help: "Current number of live dedup cache entries (memory store only).",
		}),

		TrailBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "tonebridge_trail_buffer_utilization",
			Help: "Current number of events in the trail buffer.",
		}),
	}
}

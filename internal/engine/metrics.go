package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полное время обработки запроса
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Idempotence: сколько запросов закрылись повтором из журнала
	ReplayTotal *prometheus.CounterVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openexec_request_duration_seconds",
			Help:    "Histogram of execution latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"action", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "openexec_requests_total",
			Help: "Total number of processed execution requests.",
		}, []string{"action"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "openexec_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: unknown_action, unauthorized, handler_failed, store_unavailable

		ReplayTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "openexec_replays_total",
			Help: "Total number of requests answered from the execution ledger.",
		}, []string{"action"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "openexec_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}

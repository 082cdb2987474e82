// Package metrics exposes Prometheus collectors for machinery operations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

const namespace = "machinery"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	taskWaits  *prometheus.HistogramVec
	downloaded prometheus.Counter
	inflight   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Orchestrator operations by kind and result.",
		}, []string{"kind", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of orchestrator operations.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
		taskWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_wait_seconds",
			Help:      "Time spent waiting for host tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"task", "result"}),
		downloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_dump_bytes_total",
			Help:      "Bytes of memory images downloaded from datastores.",
		}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_in_flight",
			Help:      "Operations currently talking to the host.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.taskWaits,
		m.downloaded,
		m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Track marks an operation of kind as started. The returned function
// records its outcome and must be called exactly once.
func (m *Metrics) Track(kind string) func(err error) {
	start := time.Now()
	m.inflight.WithLabelValues(kind).Inc()
	return func(err error) {
		m.inflight.WithLabelValues(kind).Dec()
		m.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		m.operations.WithLabelValues(kind, Result(err)).Inc()
	}
}

// ObserveTask records one host task wait.
func (m *Metrics) ObserveTask(task string, elapsed time.Duration, err error) {
	m.taskWaits.WithLabelValues(task, Result(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) AddDownloadedBytes(n int64) {
	if n > 0 {
		m.downloaded.Add(float64(n))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Result classifies err into a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case srvErrors.IsResourceNotFoundError(err):
		return "not_found"
	case srvErrors.IsTimeoutError(err):
		return "timeout"
	case srvErrors.IsTaskError(err):
		return "task_error"
	case srvErrors.IsTransferError(err):
		return "transfer_error"
	case srvErrors.IsConnectivityError(err):
		return "connectivity_error"
	case srvErrors.IsConfigurationError(err), srvErrors.IsFormatError(err), srvErrors.IsInvalidArgumentError(err):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

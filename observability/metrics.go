package observability

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vat",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total HTTP module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vat",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total HTTP module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vat",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vat",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks sequenced ledger operations and system totals.
type LedgerMetrics struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	totals   *prometheus.GaugeVec
	sequence prometheus.Gauge

	// OTLP mirrors of ops and latency, exported when a meter provider is
	// installed.
	opCounter metric.Int64Counter
	opLatency metric.Float64Histogram
}

// Ledger returns the singleton metrics registry for the ledger sequencer.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			ops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vat",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vat",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vat",
				Subsystem: "ledger",
				Name:      "total",
				Help:      "System totals (debt, vice, line) in whole stablecoin units.",
			}, []string{"kind"}),
			sequence: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vat",
				Subsystem: "ledger",
				Name:      "sequence",
				Help:      "Sequence number of the last applied transaction.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.ops,
			ledgerRegistry.latency,
			ledgerRegistry.totals,
			ledgerRegistry.sequence,
		)
		ledgerRegistry.initMeter()
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("vatchain/ledger")
	counter, err := meter.Int64Counter("vat.ledger.operations",
		metric.WithDescription("Ledger operations by op and outcome."))
	if err != nil {
		meter = noop.NewMeterProvider().Meter("vatchain/ledger")
		counter, _ = meter.Int64Counter("vat.ledger.operations")
	}
	latency, err := meter.Float64Histogram("vat.ledger.operation.duration",
		metric.WithDescription("Ledger operation latency."), metric.WithUnit("s"))
	if err != nil {
		latency, _ = noop.NewMeterProvider().Meter("vatchain/ledger").Float64Histogram("vat.ledger.operation.duration")
	}
	m.opCounter = counter
	m.opLatency = latency
}

// Observe records a single ledger operation. err is nil on success.
func (m *LedgerMetrics) Observe(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(strings.ToLower(op))
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	m.opCounter.Add(context.Background(), 1, attrs)
	m.opLatency.Record(context.Background(), duration.Seconds(), attrs)
}

// SetSequence records the last applied sequence number.
func (m *LedgerMetrics) SetSequence(seq uint64) {
	if m == nil {
		return
	}
	m.sequence.Set(float64(seq))
}

// SetTotal records a rad-denominated system total scaled to whole units.
func (m *LedgerMetrics) SetTotal(kind string, rad *big.Int) {
	if m == nil || rad == nil {
		return
	}
	m.totals.WithLabelValues(kind).Set(scaledFloat(rad, 45))
}

// scaledFloat converts an integer amount with the given number of decimals to
// a float for gauges. Precision loss is acceptable for dashboards.
func scaledFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, new(big.Float).SetFloat64(math.Pow10(decimals)))
	out, _ := f.Float64()
	return out
}

package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics bundles the collectors tracking vault engine activity.
type VaultMetrics struct {
	deposits    *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	swaps       *prometheus.CounterVec
	bankValue   prometheus.Gauge
	oracleAge   prometheus.Gauge
	rejections  *prometheus.CounterVec
}

type serviceMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics

	serviceMetricsOnce sync.Once
	serviceRegistry    *serviceMetrics
)

// Vault returns the lazily-initialised metrics registry for the deposit and
// withdrawal engine.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kipu",
				Subsystem: "vault",
				Name:      "deposits_total",
				Help:      "Count of accepted deposits segmented by asset class.",
			}, []string{"class"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kipu",
				Subsystem: "vault",
				Name:      "withdrawals_total",
				Help:      "Count of completed withdrawals segmented by asset class.",
			}, []string{"class"}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kipu",
				Subsystem: "vault",
				Name:      "swaps_total",
				Help:      "Count of entry swaps segmented by route kind and outcome.",
			}, []string{"route", "outcome"}),
			bankValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "kipu",
				Subsystem: "vault",
				Name:      "bank_value_units",
				Help:      "Total normalized value held by the vault in unit-of-account units.",
			}),
			oracleAge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "kipu",
				Subsystem: "vault",
				Name:      "oracle_price_age_seconds",
				Help:      "Age of the most recently consumed oracle round.",
			}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kipu",
				Subsystem: "vault",
				Name:      "rejections_total",
				Help:      "Count of operations rejected by guardrails segmented by reason.",
			}, []string{"operation", "reason"}),
		}
		prometheus.MustRegister(
			vaultRegistry.deposits,
			vaultRegistry.withdrawals,
			vaultRegistry.swaps,
			vaultRegistry.bankValue,
			vaultRegistry.oracleAge,
			vaultRegistry.rejections,
		)
	})
	return vaultRegistry
}

// RecordDeposit increments the deposit counter for the supplied asset class.
func (m *VaultMetrics) RecordDeposit(class string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(labelClass(class)).Inc()
}

// RecordWithdrawal increments the withdrawal counter for the supplied asset class.
func (m *VaultMetrics) RecordWithdrawal(class string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(labelClass(class)).Inc()
}

// RecordSwap tracks an entry swap attempt. Route should be "direct" or
// "bridged"; failed swaps count under the error outcome.
func (m *VaultMetrics) RecordSwap(route string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if route = strings.TrimSpace(route); route == "" {
		route = "unknown"
	}
	m.swaps.WithLabelValues(route, outcome).Inc()
}

// SetBankValue updates the total bank value gauge.
func (m *VaultMetrics) SetBankValue(value *big.Int) {
	if m == nil {
		return
	}
	m.bankValue.Set(bigToFloat(value))
}

// RecordOracleAge records how old the consumed price round was.
func (m *VaultMetrics) RecordOracleAge(age time.Duration) {
	if m == nil {
		return
	}
	seconds := age.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.oracleAge.Set(seconds)
}

// RecordRejection increments the guardrail rejection counter. Reasons should be
// stable strings such as "tx_limit", "bank_cap" or "stale_price" so dashboards
// stay consistent.
func (m *VaultMetrics) RecordRejection(operation, reason string) {
	if m == nil {
		return
	}
	if operation = strings.TrimSpace(operation); operation == "" {
		operation = "unknown"
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// Service returns the metrics registry used by the HTTP layer.
func Service() *serviceMetrics {
	serviceMetricsOnce.Do(func() {
		serviceRegistry = &serviceMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kipu",
				Subsystem: "vaultd",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kipu",
				Subsystem: "vaultd",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "kipu",
				Subsystem: "vaultd",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			serviceRegistry.requests,
			serviceRegistry.errors,
			serviceRegistry.latency,
		)
	})
	return serviceRegistry
}

// Observe records the outcome of an HTTP request. The status code should be the
// one ultimately written to the response writer.
func (m *serviceMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route = strings.TrimSpace(route); route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

func labelClass(class string) string {
	trimmed := strings.TrimSpace(class)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// Metrics holds the Prometheus metrics exported in serve mode
type Metrics struct {
	// LimitUsage is the latest usage value by service, limit and resource
	LimitUsage *prometheus.GaugeVec
	// LimitUsagePercent is the latest usage as a percentage of the quota
	LimitUsagePercent *prometheus.GaugeVec
	// LimitQuota is the effective quota by service and limit
	LimitQuota *prometheus.GaugeVec
	// CheckerUp is 1 when the service's last scan populated usage
	CheckerUp *prometheus.GaugeVec
	// ScansTotal counts scans by resulting severity
	ScansTotal *prometheus.CounterVec
	// ScanDuration tracks whole-scan latency
	ScanDuration prometheus.Histogram
	// LastScanTimestamp is the unix time of the last completed scan
	LastScanTimestamp prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		LimitUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "limit_usage",
				Help:      "Current usage of a limit",
			},
			[]string{"service", "limit", "resource"},
		),
		LimitUsagePercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "limit_usage_percent",
				Help:      "Current usage as a percentage of the effective quota",
			},
			[]string{"service", "limit", "resource"},
		),
		LimitQuota: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "limit_quota",
				Help:      "Effective quota of a limit",
			},
			[]string{"service", "limit"},
		),
		CheckerUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "checker_up",
				Help:      "Whether the last scan of a service populated usage (1=yes, 0=no)",
			},
			[]string{"service"},
		),
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of scans by resulting severity",
			},
			[]string{"severity"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Duration of a full scan in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		LastScanTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_scan_timestamp_seconds",
				Help:      "Unix time of the last completed scan",
			},
		),
	}

	registry.MustRegister(
		m.LimitUsage,
		m.LimitUsagePercent,
		m.LimitQuota,
		m.CheckerUp,
		m.ScansTotal,
		m.ScanDuration,
		m.LastScanTimestamp,
	)
	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveScan replaces the per-limit gauges with rows and records the scan.
func (m *Metrics) ObserveScan(rows []model.Row, results []checker.Result, level model.Severity, duration time.Duration, finished time.Time) {
	m.LimitUsage.Reset()
	m.LimitUsagePercent.Reset()
	m.LimitQuota.Reset()
	m.CheckerUp.Reset()

	for _, r := range rows {
		m.LimitUsage.WithLabelValues(r.Service, r.Limit, r.ResourceID).Set(r.Usage)
		if r.UsagePercentage != nil {
			m.LimitUsagePercent.WithLabelValues(r.Service, r.Limit, r.ResourceID).Set(*r.UsagePercentage)
		}
		if r.Quota != nil {
			m.LimitQuota.WithLabelValues(r.Service, r.Limit).Set(*r.Quota)
		}
	}
	for _, res := range results {
		up := 0.0
		if res.OK() {
			up = 1
		}
		m.CheckerUp.WithLabelValues(res.Service).Set(up)
	}

	m.ScansTotal.WithLabelValues(level.String()).Inc()
	m.ScanDuration.Observe(duration.Seconds())
	m.LastScanTimestamp.Set(float64(finished.Unix()))
}

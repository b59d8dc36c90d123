package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the process metrics registry.
type Collector struct {
	reg *prometheus.Registry

	Projections        prometheus.Counter
	ProjectedRows      prometheus.Counter
	ProjectionDuration prometheus.Histogram

	Arrivals        *prometheus.CounterVec // outcome label: updated|on_time|none|error
	ArrivalDuration prometheus.Histogram

	ReportsApplied  *prometheus.CounterVec // kind label
	ReportsRejected *prometheus.CounterVec // kind, reason labels

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	CleanupDeleted prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Projections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_projections_total",
			Help: "Total effective schedule projections.",
		}),
		ProjectedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_projected_rows_total",
			Help: "Total effective stop times written.",
		}),
		ProjectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_projection_duration_seconds",
			Help:    "Duration of effective schedule projections.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Arrivals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_arrival_lookups_total",
			Help: "Next-arrival lookups by outcome.",
		}, []string{"outcome"}),
		ArrivalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_arrival_lookup_duration_seconds",
			Help:    "Duration of next-arrival lookups.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		ReportsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_realtime_reports_applied_total",
			Help: "Real-time reports stored.",
		}, []string{"kind"}),
		ReportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_realtime_reports_rejected_total",
			Help: "Real-time reports rejected.",
		}, []string{"kind", "reason"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_publish_duration_seconds",
			Help:    "Duration to publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		CleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_cleanup_deleted_total",
			Help: "Rows removed by retention cleanup.",
		}),
	}

	reg.MustRegister(
		c.Projections, c.ProjectedRows, c.ProjectionDuration,
		c.Arrivals, c.ArrivalDuration,
		c.ReportsApplied, c.ReportsRejected,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.CleanupDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) ProjectionCompleted(rows int, elapsed time.Duration) {
	c.Projections.Inc()
	c.ProjectedRows.Add(float64(rows))
	c.ProjectionDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ArrivalResolved(outcome string, elapsed time.Duration) {
	c.Arrivals.WithLabelValues(outcome).Inc()
	c.ArrivalDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ReportApplied(kind string) {
	c.ReportsApplied.WithLabelValues(kind).Inc()
}

func (c *Collector) ReportRejected(kind, reason string) {
	c.ReportsRejected.WithLabelValues(kind, reason).Inc()
}

func (c *Collector) PublishObserve(d time.Duration, err error) {
	c.PublishDuration.Observe(d.Seconds())
	if err != nil {
		c.NATSPublishErrs.Inc()
		return
	}
	c.NATSPublished.Inc()
}

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

func (c *Collector) CleanupCompleted(deleted int64) {
	c.CleanupDeleted.Add(float64(deleted))
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the quota monitor, registered on a
// custom registry so /metrics exposes only these.
type Metrics struct {
	Registry *prometheus.Registry

	// Poller
	PollDuration    *prometheus.HistogramVec
	PollTotal       *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec
	MetricDataCalls *prometheus.CounterVec
	MonitoredQuotas *prometheus.GaugeVec

	// Catalog
	CatalogSyncTotal *prometheus.CounterVec
	QuotasEvicted    *prometheus.CounterVec

	// Event fan-out
	PublishedEvents  *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	ReportMessages   *prometheus.CounterVec
	AdvisorRefreshes *prometheus.CounterVec

	// Scheduler
	JobDuration *prometheus.HistogramVec
	JobRuns     *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with every collector registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quota_monitor_poll_duration_seconds",
			Help:    "Duration of a utilization poll of one service in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"region", "service"}),
		PollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_poll_total",
			Help: "Total number of service polls by outcome.",
		}, []string{"region", "service", "result"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_utilization_events_total",
			Help: "Total number of utilization events evaluated, by status.",
		}, []string{"region", "status"}),
		MetricDataCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_metric_data_calls_total",
			Help: "Total number of GetMetricData calls by outcome.",
		}, []string{"region", "result"}),
		MonitoredQuotas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quota_monitor_monitored_quotas",
			Help: "Number of quotas polled in the last run of a service.",
		}, []string{"region", "service"}),

		CatalogSyncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_catalog_sync_total",
			Help: "Total number of catalog syncs by outcome.",
		}, []string{"service", "result"}),
		QuotasEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_catalog_quotas_pruned_total",
			Help: "Total number of quota rows removed from the catalog.",
		}, []string{"service"}),

		PublishedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_published_events_total",
			Help: "Total number of events handed to a publisher, by outcome.",
		}, []string{"publisher", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_notifications_total",
			Help: "Total number of notifications by channel and outcome.",
		}, []string{"channel", "result"}),
		ReportMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_report_messages_total",
			Help: "Total number of queue messages processed by the reporter.",
		}, []string{"result"}),
		AdvisorRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_advisor_refresh_total",
			Help: "Total number of Trusted Advisor check refreshes by outcome.",
		}, []string{"result"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quota_monitor_job_duration_seconds",
			Help:    "Duration of scheduled jobs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"job"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_monitor_job_runs_total",
			Help: "Total number of scheduled job runs by outcome.",
		}, []string{"job", "result"}),
	}

	reg.MustRegister(
		m.PollDuration,
		m.PollTotal,
		m.EventsTotal,
		m.MetricDataCalls,
		m.MonitoredQuotas,
		m.CatalogSyncTotal,
		m.QuotasEvicted,
		m.PublishedEvents,
		m.Notifications,
		m.ReportMessages,
		m.AdvisorRefreshes,
		m.JobDuration,
		m.JobRuns,
	)

	return m
}

// Result returns the outcome label for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

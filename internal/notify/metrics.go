package notify

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	Sent      *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Throttled *prometheus.CounterVec
	Skipped   *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	InFlight  prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupride_notifications_sent_total",
			Help: "Notification emails accepted by the provider.",
		}, []string{"kind"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupride_notifications_failed_total",
			Help: "Notification emails that could not be rendered or sent.",
		}, []string{"kind"}),
		Throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupride_notifications_throttled_total",
			Help: "Notifications suppressed by the per-recipient throttle window.",
		}, []string{"kind"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupride_notifications_skipped_total",
			Help: "Candidates dropped during recipient resolution.",
		}, []string{"kind", "reason"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupride_notification_dispatch_seconds",
			Help:    "Wall time of one event dispatch across all recipients.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groupride_notification_dispatches_inflight",
			Help: "Background dispatches currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Sent, m.Failed, m.Throttled, m.Skipped, m.Duration, m.InFlight)
	}
	return m
}

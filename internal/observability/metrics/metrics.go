package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking widget flows.
type BookingMetrics struct {
	backendTotal   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	uploads        *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		backendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zyta",
			Subsystem: "widget",
			Name:      "backend_requests_total",
			Help:      "Total requests to the booking backend",
		}, []string{"operation", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zyta",
			Subsystem: "widget",
			Name:      "backend_latency_seconds",
			Help:      "Latency of booking backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zyta",
			Subsystem: "widget",
			Name:      "step_transitions_total",
			Help:      "Wizard step transitions by outcome",
		}, []string{"from", "to", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zyta",
			Subsystem: "widget",
			Name:      "submissions_total",
			Help:      "Booking submissions by payment method and outcome",
		}, []string{"method", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zyta",
			Subsystem: "widget",
			Name:      "uploads_total",
			Help:      "Attachment uploads by kind and status",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendTotal, m.backendLatency, m.transitions, m.submissions, m.uploads)
	return m
}

// ObserveBackendRequest records one backend call; it satisfies
// zyta.RequestObserver.
func (m *BookingMetrics) ObserveBackendRequest(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.backendTotal.WithLabelValues(operation, status).Inc()
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(from, to string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
}

func (m *BookingMetrics) ObserveSubmission(method, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(method, outcome).Inc()
}

func (m *BookingMetrics) ObserveUpload(kind, status string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind, status).Inc()
}

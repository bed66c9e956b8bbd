package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status HTTP requests.",
		},
		[]string{"service", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qrgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route", "status"},
	)
	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Subsystem: "ingest",
			Name:      "outcomes_total",
			Help:      "Outcomes produced per accepted connection.",
		},
		[]string{"kind", "reason"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qrgate",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Access service request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status", "success"},
	)
	listenerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Subsystem: "supervisor",
			Name:      "listener_restarts_total",
			Help:      "Listener restarts after a fault.",
		},
	)
	listenerFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Subsystem: "supervisor",
			Name:      "listener_faults_total",
			Help:      "Listener loop faults by failing operation.",
		},
		[]string{"op"},
	)
	notifyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Outcomes dropped because the notification queue was full.",
		},
	)
	notifySinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrgate",
			Subsystem: "notify",
			Name:      "sink_errors_total",
			Help:      "Notification sink delivery failures.",
		},
		[]string{"event"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			outcomes,
			dispatchDuration,
			listenerRestarts,
			listenerFaults,
			notifyDropped,
			notifySinkErrors,
		)
	})
}

func RecordHTTPRequest(service, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, route, statusLabel).Observe(duration.Seconds())
}

// RecordOutcome counts one connection outcome. reason is empty for success.
func RecordOutcome(kind, reason string) {
	RegisterMetrics()
	outcomes.WithLabelValues(kind, reason).Inc()
}

// RecordDispatch observes one access service call; status is 0 when no
// response was received.
func RecordDispatch(status int, duration time.Duration, success bool) {
	RegisterMetrics()
	dispatchDuration.WithLabelValues(strconv.Itoa(status), strconv.FormatBool(success)).
		Observe(duration.Seconds())
}

func RecordListenerFault(op string) {
	RegisterMetrics()
	listenerFaults.WithLabelValues(op).Inc()
}

func RecordListenerRestart() {
	RegisterMetrics()
	listenerRestarts.Inc()
}

func RecordNotifyDropped() {
	RegisterMetrics()
	notifyDropped.Inc()
}

func RecordSinkError(event string) {
	RegisterMetrics()
	notifySinkErrors.WithLabelValues(event).Inc()
}

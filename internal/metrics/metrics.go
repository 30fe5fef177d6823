// Package metrics provides Prometheus metrics for the file browser client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Outgoing HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebrowser_http_requests_total",
			Help: "Total number of HTTP requests sent to the store",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filebrowser_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Session operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebrowser_operations_total",
			Help: "Total session operations",
		},
		[]string{"op", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filebrowser_operation_duration_seconds",
			Help:    "Session operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	staleListingsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filebrowser_stale_listings_discarded_total",
			Help: "Listing responses discarded because a newer request was issued",
		},
	)

	// Transfer metrics
	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filebrowser_bytes_uploaded_total",
			Help: "Total bytes uploaded",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebrowser_uploads_total",
			Help: "Total number of uploads",
		},
		[]string{"status"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filebrowser_bytes_downloaded_total",
			Help: "Total bytes downloaded",
		},
	)

	policyRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebrowser_policy_rejections_total",
			Help: "Uploads rejected by the local upload policy",
		},
		[]string{"rule"},
	)

	// Event metrics
	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebrowser_event_subscribers",
			Help: "Number of active session event subscribers",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebrowser_events_total",
			Help: "Total session events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an outgoing HTTP request. Status 0 means the
// request never got a response.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records a session operation.
func RecordOperation(op string, duration time.Duration, success bool) {
	operationsTotal.WithLabelValues(op, statusLabel(success)).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordStaleListing records a listing response dropped by the sequence guard.
func RecordStaleListing() {
	staleListingsDiscarded.Inc()
}

// RecordUpload records a completed upload attempt.
func RecordUpload(bytes int64, success bool) {
	if success {
		bytesUploaded.Add(float64(bytes))
	}
	uploadsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordDownload records downloaded bytes.
func RecordDownload(bytes int64) {
	bytesDownloaded.Add(float64(bytes))
}

// RecordPolicyRejection records an upload rejected before any network call.
func RecordPolicyRejection(rule string) {
	policyRejectionsTotal.WithLabelValues(rule).Inc()
}

// SetEventSubscribers sets the number of active event subscribers.
func SetEventSubscribers(count int64) {
	eventSubscribers.Set(float64(count))
}

// RecordEvent records a published session event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

type transport struct {
	next http.RoundTripper
}

// Transport returns a round tripper that records request metrics.
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &transport{next: next}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	RecordHTTPRequest(req.Method, req.URL.Path, status, time.Since(start))
	return resp, err
}

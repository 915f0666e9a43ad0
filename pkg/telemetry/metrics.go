package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"davbridge/pkg/dav"
)

const namespace = "davbridge"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests answered, by host runtime, method and status",
		},
		[]string{"runtime", "method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time from request conversion to response hand-off",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"runtime"},
	)

	payloadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "payload_errors_total",
			Help:      "Request body errors surfaced to the protocol handler, by kind",
		},
		[]string{"runtime", "kind"},
	)

	versionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "version_rejections_total",
			Help:      "Requests rejected because their protocol version is not supported",
		},
		[]string{"runtime"},
	)

	constructionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_construction_failures_total",
			Help:      "Responses the host runtime could not represent; the connection was aborted",
		},
		[]string{"runtime"},
	)

	streamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "stream_failures_total",
			Help:      "Response bodies that failed mid-stream",
		},
		[]string{"runtime"},
	)

	bodyFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "response_frames_total",
			Help:      "Response body writes handed to the host runtime",
		},
		[]string{"runtime"},
	)

	bodyBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "response_bytes_total",
			Help:      "Response body bytes handed to the host runtime",
		},
		[]string{"runtime"},
	)

	authDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "denials_total",
			Help:      "Requests answered by the credential gate, by reason",
		},
		[]string{"reason"},
	)
)

// ObserveRequest records one answered request.
func ObserveRequest(runtime, method string, status int, d time.Duration) {
	requestsTotal.WithLabelValues(runtime, method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(runtime).Observe(d.Seconds())
}

// PayloadError records a request body error of the given kind.
func PayloadError(runtime string, kind dav.PayloadErrorKind) {
	payloadErrors.WithLabelValues(runtime, kind.String()).Inc()
}

// VersionRejected records a request refused for its protocol version.
func VersionRejected(runtime string) {
	versionRejections.WithLabelValues(runtime).Inc()
}

// ConstructionFailure records an aborted response.
func ConstructionFailure(runtime string) {
	constructionFailures.WithLabelValues(runtime).Inc()
}

// StreamFailure records a response body that failed after headers were sent.
func StreamFailure(runtime string) {
	streamFailures.WithLabelValues(runtime).Inc()
}

// BodyFrame records one response body write of n bytes.
func BodyFrame(runtime string, n int) {
	bodyFrames.WithLabelValues(runtime).Inc()
	bodyBytes.WithLabelValues(runtime).Add(float64(n))
}

// AuthDenied records a gate rejection.
func AuthDenied(reason string) {
	authDenials.WithLabelValues(reason).Inc()
}

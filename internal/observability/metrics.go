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
			Namespace: "ircwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ircwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	linesIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "wire",
			Name:      "lines_in_total",
			Help:      "Inbound lines by command or numeric.",
		},
		[]string{"kind"},
	)
	linesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "wire",
			Name:      "lines_out_total",
			Help:      "Outbound lines by command.",
		},
		[]string{"cmd"},
	)
	parseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "wire",
			Name:      "parse_errors_total",
			Help:      "Inbound lines skipped as malformed, by offending token.",
		},
		[]string{"token"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ircwire",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Outbound messages waiting in the queue.",
		},
	)
	throttleWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ircwire",
			Subsystem: "queue",
			Name:      "throttle_wait_seconds",
			Help:      "Time the queue held messages back for flood control.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
	)
	handshakePhases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "handshake",
			Name:      "phase_transitions_total",
			Help:      "Registration handshake phase transitions.",
		},
		[]string{"phase"},
	)
	handshakeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "handshake",
			Name:      "outcomes_total",
			Help:      "Registration handshake results.",
		},
		[]string{"outcome"},
	)
	saslAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "sasl",
			Name:      "attempts_total",
			Help:      "SASL mechanism attempts by result.",
		},
		[]string{"mechanism", "result"},
	)
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircwire",
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Connection read/write failures.",
		},
		[]string{"op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			linesIn, linesOut, parseErrors,
			queueDepth, throttleWait,
			handshakePhases, handshakeOutcomes,
			saslAttempts, transportErrors,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordLineIn(kind string) {
	RegisterMetrics()
	linesIn.WithLabelValues(kind).Inc()
}

func RecordLineOut(cmd string) {
	RegisterMetrics()
	linesOut.WithLabelValues(cmd).Inc()
}

func RecordParseError(token string) {
	RegisterMetrics()
	parseErrors.WithLabelValues(token).Inc()
}

func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}

func RecordThrottleWait(d time.Duration) {
	RegisterMetrics()
	throttleWait.Observe(d.Seconds())
}

func RecordHandshakePhase(phase string) {
	RegisterMetrics()
	handshakePhases.WithLabelValues(phase).Inc()
}

func RecordHandshakeOutcome(outcome string) {
	RegisterMetrics()
	handshakeOutcomes.WithLabelValues(outcome).Inc()
}

func RecordSASLAttempt(mechanism, result string) {
	RegisterMetrics()
	saslAttempts.WithLabelValues(mechanism, result).Inc()
}

func RecordTransportError(op string) {
	RegisterMetrics()
	transportErrors.WithLabelValues(op).Inc()
}

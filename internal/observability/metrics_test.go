package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("ircbot", "GET", "/health", 200, 12*time.Millisecond)
	RecordLineIn("PRIVMSG")
	RecordLineOut("PONG")
	RecordParseError("tags")
	SetQueueDepth(3)
	RecordThrottleWait(2 * time.Second)
	RecordHandshakePhase("cap-negotiating")
	RecordHandshakeOutcome("registered")
	RecordSASLAttempt("PLAIN", "success")
	RecordTransportError("read")
}

func TestRecordersIncrementSeries(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(saslAttempts.WithLabelValues("EXTERNAL", "rejected"))
	RecordSASLAttempt("EXTERNAL", "rejected")
	RecordSASLAttempt("EXTERNAL", "rejected")
	if got := testutil.ToFloat64(saslAttempts.WithLabelValues("EXTERNAL", "rejected")); got != before+2 {
		t.Fatalf("expected %v, got %v", before+2, got)
	}

	SetQueueDepth(7)
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Fatalf("unexpected queue depth %v", got)
	}

	RecordParseError("source")
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "ircwire_wire_parse_errors_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n == 0 {
		t.Fatalf("parse error series not gathered")
	}
}

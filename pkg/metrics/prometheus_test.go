package metrics

import (
	"testing"

	"DualSignal/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordBarReceived("AAPL")
	r.RecordBarReceived("AAPL")
	r.RecordError("feed_decode")
	r.RecordObservations(3)
	r.RecordLearningResult("AAPL", models.StateConverged)
	r.RecordLearningResult("MSFT", models.StateTraining)

	if got := testutil.ToFloat64(r.barsReceived.WithLabelValues("AAPL")); got != 2 {
		t.Fatalf("bars received = %v", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("feed_decode")); got != 1 {
		t.Fatalf("errors = %v", got)
	}
	if got := testutil.ToFloat64(r.observations); got != 3 {
		t.Fatalf("observations = %v", got)
	}
	if got := testutil.ToFloat64(r.learningState.WithLabelValues("AAPL")); got != 1 {
		t.Fatalf("AAPL converged gauge = %v", got)
	}
	if got := testutil.ToFloat64(r.learningState.WithLabelValues("MSFT")); got != 0 {
		t.Fatalf("MSFT converged gauge = %v", got)
	}
}

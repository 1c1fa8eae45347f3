package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"komerge/internal/platform/metrics"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()
	r := metrics.New()
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()
	r.MergeFinished("ok")
	r.Swept(3)
	r.Swept(0)

	if got := testutil.ToFloat64(r.SessionsActive); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(r.SessionsCreated); got != 2 {
		t.Fatalf("expected 2 created sessions, got %v", got)
	}
	if got := testutil.ToFloat64(r.Merges.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok merge, got %v", got)
	}
	if got := testutil.ToFloat64(r.SweepRemoved); got != 3 {
		t.Fatalf("expected 3 swept sessions, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	t.Parallel()
	var r *metrics.Recorder
	r.SessionOpened()
	r.SessionClosed()
	r.MergeFinished("error")
	r.Downloaded()
	r.Swept(1)
}

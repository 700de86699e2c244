package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := stageMessagesTotal
	Init()

	if stageMessagesTotal == nil || stageMessagesTotal != first {
		t.Fatal("Init() did not keep a single set of collectors")
	}
}

func TestObserveStageMessage(t *testing.T) {
	Init()
	before := testutil.ToFloat64(stageMessagesTotal.WithLabelValues("summarizer", OutcomeDropped))
	ObserveStageMessage("summarizer", OutcomeDropped, 10*time.Millisecond)
	after := testutil.ToFloat64(stageMessagesTotal.WithLabelValues("summarizer", OutcomeDropped))
	if after-before != 1 {
		t.Errorf("expected dropped counter to grow by 1, got %f", after-before)
	}
}

func TestDeletionCounters(t *testing.T) {
	Init()
	objectsBefore := testutil.ToFloat64(deletionObjectsTotal)
	rowsBefore := testutil.ToFloat64(deletionRowsTotal.WithLabelValues("pages"))

	AddDeletedObjects(3)
	AddDeletedObjects(0)
	AddDeletedRows("pages", 5)
	AddDeletedRows("pages", 0)
	ObserveDeletionStep("object_purge", "ok")

	if got := testutil.ToFloat64(deletionObjectsTotal) - objectsBefore; got != 3 {
		t.Errorf("expected 3 objects recorded, got %f", got)
	}
	if got := testutil.ToFloat64(deletionRowsTotal.WithLabelValues("pages")) - rowsBefore; got != 5 {
		t.Errorf("expected 5 rows recorded, got %f", got)
	}
	if got := testutil.ToFloat64(deletionStepsTotal.WithLabelValues("object_purge", "ok")); got < 1 {
		t.Errorf("expected step counter to be observed, got %f", got)
	}
}

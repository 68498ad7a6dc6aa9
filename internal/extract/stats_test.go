package extract

import (
	"fmt"
	"testing"
	"time"

	"github.com/dgallion1/pagemark/internal/meta"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, us := range []int64{100, 200, 300, 400, 500} {
		stats.Record(time.Duration(us)*time.Microsecond, nil)
	}

	snap := stats.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinUs != 100 || snap.MaxUs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%d max=%d", snap.MinUs, snap.MaxUs)
	}
	if snap.AvgUs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgUs)
	}
	if snap.P50Us != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Us)
	}
	if snap.P95Us != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Us)
	}
	if snap.P99Us != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Us)
	}
}

func TestStatsCountsFailuresByReason(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(time.Millisecond, nil)
	stats.Record(time.Microsecond, &InvalidSpanError{Span: meta.Span{Start: 9, End: 9}, Len: 4})
	stats.Record(time.Microsecond, fmt.Errorf("section 0: %w", &MissingPageError{Page: 3}))
	stats.Record(time.Microsecond, fmt.Errorf("boom"))

	snap := stats.Snapshot()
	if snap.Count != 4 {
		t.Fatalf("expected count=4, got %d", snap.Count)
	}
	for reason, want := range map[string]int{"invalid_span": 1, "missing_page": 1, "other": 1} {
		if snap.Failures[reason] != want {
			t.Errorf("expected %d %s failures, got %d", want, reason, snap.Failures[reason])
		}
	}
	// Failures are left out of latency figures.
	if snap.MinUs != 1000 || snap.MaxUs != 1000 {
		t.Errorf("expected latency from the success only, got min=%d max=%d", snap.MinUs, snap.MaxUs)
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record(100*time.Microsecond, nil)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	stats.Record(200*time.Microsecond, nil)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinUs != 200 {
		t.Fatalf("expected one fresh sample of 200us, got %+v", snap)
	}
}

func TestStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(-10*time.Microsecond, nil)
	snap := stats.Snapshot()
	if snap.MinUs != 0 || snap.MaxUs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinUs, snap.MaxUs)
	}
}

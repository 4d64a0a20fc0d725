package observer

import (
	"strings"
	"testing"
	"time"
)

func TestObserveRecordsSamples(t *testing.T) {
	o := NewLogObserver(nil, 4)
	o.Observe("get", 10*time.Millisecond, 128)
	o.Observe("get", 20*time.Millisecond, 256)

	got := o.Recent("get")
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].Elapsed != 10*time.Millisecond || got[1].Elapsed != 20*time.Millisecond {
		t.Fatalf("samples out of order: %+v", got)
	}
}

func TestObserveBoundsRetentionPerKind(t *testing.T) {
	o := NewLogObserver(nil, 3)
	for i := 0; i < 10; i++ {
		o.Observe("put", time.Duration(i)*time.Millisecond, i)
	}
	got := o.Recent("put")
	if len(got) != 3 {
		t.Fatalf("expected retention bounded to 3, got %d", len(got))
	}
	// Oldest entries evicted first: the surviving window is the last 3.
	if got[0].Bytes != 7 || got[1].Bytes != 8 || got[2].Bytes != 9 {
		t.Fatalf("expected the most recent 3 samples to survive, got %+v", got)
	}
}

func TestRecentIsIndependentOfKind(t *testing.T) {
	o := NewLogObserver(nil, 8)
	o.Observe("get", time.Millisecond, 1)
	o.Observe("put", time.Millisecond, 2)
	if len(o.Recent("get")) != 1 || len(o.Recent("put")) != 1 {
		t.Fatalf("kinds must track independent histories")
	}
	if len(o.Recent("snapshot")) != 0 {
		t.Fatalf("unrecorded kind should return empty, not nil panic")
	}
}

func TestRecentReturnsACopy(t *testing.T) {
	o := NewLogObserver(nil, 8)
	o.Observe("get", time.Millisecond, 1)
	got := o.Recent("get")
	got[0].Bytes = 9999
	if o.Recent("get")[0].Bytes == 9999 {
		t.Fatalf("Recent must not expose internal storage to mutation")
	}
}

func TestSummaryFormatsAveragesAndTotals(t *testing.T) {
	o := NewLogObserver(nil, 8)
	o.Observe("get", 10*time.Millisecond, 100)
	o.Observe("get", 30*time.Millisecond, 200)

	s := o.Summary("get")
	if !strings.Contains(s, "n=2") {
		t.Fatalf("expected sample count in summary, got %q", s)
	}
	if !strings.Contains(s, "total_bytes=300") {
		t.Fatalf("expected total bytes in summary, got %q", s)
	}
}

func TestSummaryOfEmptyKind(t *testing.T) {
	o := NewLogObserver(nil, 8)
	s := o.Summary("nonexistent")
	if !strings.Contains(s, "no samples") {
		t.Fatalf("expected 'no samples' message, got %q", s)
	}
}

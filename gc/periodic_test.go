package gc

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/chazu/heapcore/typeinfo"
)

func TestPeriodicCollectorDefaults(t *testing.T) {
	pc := NewPeriodicCollector(New(), 0, nil)
	if pc.Interval() != DefaultCollectInterval {
		t.Errorf("Interval() = %v, want %v", pc.Interval(), DefaultCollectInterval)
	}
	if !pc.IsEnabled() {
		t.Error("new collectors start enabled")
	}
	if pc.LastStats() != nil || pc.CycleCount() != 0 {
		t.Error("no cycle has run yet")
	}
	// Stop without Start is a no-op.
	pc.Stop()
}

func TestPeriodicCollectorCollectNow(t *testing.T) {
	h := New()
	mustAlloc(t, h, typeinfo.Of(typeinfo.I64))
	mustAlloc(t, h, typeinfo.Of(typeinfo.I64))

	var seen []CycleStats
	pc := NewPeriodicCollector(h, time.Hour, func(s CycleStats) { seen = append(seen, s) })

	stats := pc.CollectNow()
	if stats.Reclaimed != 2 || stats.FreedBytes != 16 {
		t.Fatalf("stats = %+v, want 2 objects and 16 bytes reclaimed", stats)
	}
	if pc.CycleCount() != 1 || len(seen) != 1 {
		t.Fatalf("CycleCount() = %d, callbacks = %d, want 1 and 1", pc.CycleCount(), len(seen))
	}
	if last := pc.LastStats(); last == nil || last.Reclaimed != 2 {
		t.Fatalf("LastStats() = %+v", last)
	}
}

func TestPeriodicCollectorLoop(t *testing.T) {
	h := New()
	var cycles atomic.Int32
	done := make(chan struct{})
	pc := NewPeriodicCollector(h, 5*time.Millisecond, func(CycleStats) {
		if cycles.Add(1) == 3 {
			close(done)
		}
	})

	pc.Start()
	pc.Start() // no-op while running
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not run three cycles")
	}
	pc.Stop()

	n := pc.CycleCount()
	time.Sleep(20 * time.Millisecond)
	if pc.CycleCount() != n {
		t.Fatal("cycles ran after Stop returned")
	}
}

func TestPeriodicCollectorDisabled(t *testing.T) {
	h := New()
	pc := NewPeriodicCollector(h, time.Millisecond, nil)
	pc.SetEnabled(false)
	pc.Start()
	time.Sleep(20 * time.Millisecond)
	pc.Stop()
	if pc.CycleCount() != 0 {
		t.Fatalf("disabled collector ran %d cycles", pc.CycleCount())
	}
}

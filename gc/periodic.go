package gc

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCollectInterval is the default period between collections.
const DefaultCollectInterval = 30 * time.Second

// PeriodicCollector runs a full stop-the-world Collect on a heap at a fixed
// interval. Every cycle still runs to completion under the heap lock; the
// collector only decides when cycles start.
type PeriodicCollector struct {
	heap     *Heap
	interval time.Duration
	enabled  atomic.Bool

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}

	cycles    atomic.Uint64
	lastStats atomic.Pointer[CycleStats]
	onCycle   func(CycleStats)
}

// NewPeriodicCollector creates a collector for heap. A non-positive interval
// selects DefaultCollectInterval. onCycle, if non-nil, is called after every
// cycle outside the heap lock.
func NewPeriodicCollector(heap *Heap, interval time.Duration, onCycle func(CycleStats)) *PeriodicCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	pc := &PeriodicCollector{
		heap:     heap,
		interval: interval,
		onCycle:  onCycle,
	}
	pc.enabled.Store(true)
	return pc
}

// Start begins the collection loop. Calling Start while running is a no-op.
func (pc *PeriodicCollector) Start() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.quit == nil {
		pc.quit, pc.done = make(chan struct{}), make(chan struct{})
		go pc.run(pc.quit, pc.done)
	}
}

// Stop halts the loop and waits for an in-flight cycle to finish. It is safe
// to call on a collector that was never started.
func (pc *PeriodicCollector) Stop() {
	pc.mu.Lock()
	quit, done := pc.quit, pc.done
	pc.quit, pc.done = nil, nil
	pc.mu.Unlock()
	if quit == nil {
		return
	}
	close(quit)
	<-done
}

// SetEnabled pauses or resumes collection without stopping the loop.
func (pc *PeriodicCollector) SetEnabled(enabled bool) {
	pc.enabled.Store(enabled)
}

// IsEnabled reports whether timer ticks trigger collections.
func (pc *PeriodicCollector) IsEnabled() bool {
	return pc.enabled.Load()
}

// Interval returns the collection period.
func (pc *PeriodicCollector) Interval() time.Duration {
	return pc.interval
}

// CycleCount returns the number of cycles run by this collector.
func (pc *PeriodicCollector) CycleCount() uint64 {
	return pc.cycles.Load()
}

// LastStats returns the statistics of the most recent cycle, or nil.
func (pc *PeriodicCollector) LastStats() *CycleStats {
	return pc.lastStats.Load()
}

// CollectNow runs a cycle immediately, regardless of the timer.
func (pc *PeriodicCollector) CollectNow() CycleStats {
	stats := pc.heap.CollectCycle()
	pc.cycles.Add(1)
	pc.lastStats.Store(&stats)
	if pc.onCycle != nil {
		pc.onCycle(stats)
	}
	return stats
}

func (pc *PeriodicCollector) run(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if pc.enabled.Load() {
				pc.CollectNow()
			}
		}
	}
}

// Package telemetry provides heap observers: structured logging, an event
// recorder with a CBOR event log, and a SQLite history of collection cycles.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/heapcore/gc"

	_ "github.com/tliron/commonlog/simple"
)

// LoggerName is the commonlog logger used for heap events.
const LoggerName = "heapcore.gc"

// LogObserver logs heap events. Cycle boundaries are logged at Info,
// individual allocations and deallocations at Debug.
type LogObserver struct {
	log   commonlog.Logger
	start atomic.Int64 // unix nanos of the current cycle's Start
	freed atomic.Int64
}

// NewLogObserver returns a LogObserver writing to the heapcore.gc logger.
func NewLogObserver() *LogObserver {
	return &LogObserver{log: commonlog.GetLogger(LoggerName)}
}

// Event implements gc.Observer.
func (o *LogObserver) Event(e gc.Event) {
	switch e.Kind {
	case gc.EventStart:
		o.start.Store(time.Now().UnixNano())
		o.freed.Store(0)
		o.log.Info("collection started")
	case gc.EventEnd:
		elapsed := time.Duration(time.Now().UnixNano() - o.start.Load())
		o.log.Infof("collection finished: %d objects reclaimed in %s", o.freed.Load(), elapsed)
	case gc.EventAllocation:
		o.log.Debugf("allocated %s", e.Handle)
	case gc.EventDeallocation:
		o.freed.Add(1)
		o.log.Debugf("deallocated %s", e.Handle)
	}
}

// LogCycle logs the statistics of a finished cycle.
func LogCycle(heap *gc.Heap, stats gc.CycleStats) {
	commonlog.GetLogger(LoggerName).Infof(
		"heap %s: reclaimed %d (%d bytes), live %d (%d bytes), took %s",
		heap.ID(), stats.Reclaimed, stats.FreedBytes, stats.Live, stats.LiveBytes, stats.Duration)
}

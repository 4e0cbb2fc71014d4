package gc

import "time"

// CycleStats summarizes one collection cycle.
type CycleStats struct {
	Reclaimed  int
	FreedBytes uint64
	Live       int
	LiveBytes  uint64
	Duration   time.Duration
	Timestamp  time.Time
}

// Collect reclaims every object that is neither rooted nor reachable from a
// rooted object, and reports whether anything was reclaimed. The whole cycle
// runs under the exclusive lock.
func (h *Heap) Collect() bool {
	return h.CollectCycle().Reclaimed > 0
}

// CollectCycle is Collect returning the cycle's statistics.
func (h *Heap) CollectCycle() CycleStats {
	start := time.Now()
	h.observer.Event(Event{Kind: EventStart})

	h.mu.Lock()
	bytesBefore := h.allocated.Load()
	h.mark()
	stats := CycleStats{
		Reclaimed: h.sweep(),
		Live:      h.Len(),
		LiveBytes: h.allocated.Load(),
		Timestamp: start,
	}
	h.mu.Unlock()

	h.observer.Event(Event{Kind: EventEnd})

	stats.FreedBytes = bytesBefore - stats.LiveBytes
	stats.Duration = time.Since(start)
	return stats
}

// mark colors every object reachable from a root black.
func (h *Heap) mark() {
	var work []*object
	for i := range h.slots {
		if obj := h.slots[i].obj; obj != nil && obj.roots > 0 {
			work = append(work, obj)
		}
	}

	for len(work) > 0 {
		obj := work[len(work)-1]
		work = work[:len(work)-1]
		if obj.color == black {
			continue
		}

		tr := newTracer(obj)
		for ref, ok := tr.Next(); ok; ref, ok = tr.Next() {
			target := h.resolve(ref)
			if target.color == white {
				target.color = gray
				work = append(work, target)
			}
		}
		obj.color = black
	}
}

// sweep releases every object that was not marked and resets survivors to
// white. It returns the number of objects released.
func (h *Heap) sweep() int {
	reclaimed := 0
	for i := range h.slots {
		s := &h.slots[i]
		if s.obj == nil {
			continue
		}
		if s.obj.color == black {
			s.obj.color = white
			continue
		}
		handle := makeHandle(i, s.gen)
		h.release(i)
		h.observer.Event(Event{Kind: EventDeallocation, Handle: handle})
		reclaimed++
	}
	return reclaimed
}

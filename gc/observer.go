package gc

import "fmt"

// EventKind identifies a heap event.
type EventKind uint8

const (
	// EventStart is emitted when a collection cycle begins.
	EventStart EventKind = iota
	// EventAllocation is emitted for every object entering the heap table.
	EventAllocation
	// EventDeallocation is emitted for every object reclaimed by a collection.
	EventDeallocation
	// EventEnd is emitted when a collection cycle finishes.
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventAllocation:
		return "allocation"
	case EventDeallocation:
		return "deallocation"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is a single heap notification. Handle is set for allocation and
// deallocation events.
type Event struct {
	Kind   EventKind
	Handle Handle
}

func (e Event) String() string {
	if e.Kind == EventAllocation || e.Kind == EventDeallocation {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Handle)
	}
	return e.Kind.String()
}

// Observer is a passive sink for heap events. Implementations must not call
// back into the heap that notifies them.
type Observer interface {
	Event(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Event calls f(e).
func (f ObserverFunc) Event(e Event) { f(e) }

// Observers fans every event out to each observer in order.
type Observers []Observer

// Event forwards e to every observer.
func (os Observers) Event(e Event) {
	for _, o := range os {
		o.Event(e)
	}
}

type nopObserver struct{}

func (nopObserver) Event(Event) {}

// Stats is a snapshot of heap accounting.
type Stats struct {
	// AllocatedBytes counts live payload bytes. Array block headers and
	// alignment padding are excluded.
	AllocatedBytes uint64

	// Objects is the number of live objects in the table.
	Objects int
}

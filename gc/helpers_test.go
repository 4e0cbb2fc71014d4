package gc

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/chazu/heapcore/typeinfo"
)

// eventLog records heap events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Event(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) handles(kind EventKind) map[Handle]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Handle]int)
	for _, e := range l.events {
		if e.Kind == kind {
			out[e.Handle]++
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func newTestHeap() (*Heap, *eventLog) {
	log := &eventLog{}
	return New(WithObserver(log)), log
}

func mustAlloc(t *testing.T, h *Heap, ty *typeinfo.Type) Handle {
	t.Helper()
	handle, err := h.Alloc(ty)
	if err != nil {
		t.Fatalf("Alloc(%s): %v", ty.Name(), err)
	}
	return handle
}

func mustAllocArray(t *testing.T, h *Heap, ty *typeinfo.Type, n int) Handle {
	t.Helper()
	handle, err := h.AllocArray(ty, n)
	if err != nil {
		t.Fatalf("AllocArray(%s, %d): %v", ty.Name(), n, err)
	}
	return handle
}

// fieldBytes returns the bytes of a named field of a struct object.
func fieldBytes(t *testing.T, h *Heap, obj Handle, name string) []byte {
	t.Helper()
	f, ok := h.TypeOf(obj).Field(name)
	if !ok {
		t.Fatalf("%s has no field %s", h.TypeOf(obj).Name(), name)
	}
	size := f.Type.ReferenceLayout().Size
	return h.Data(obj)[f.Offset : f.Offset+size]
}

func setRef(t *testing.T, h *Heap, obj Handle, name string, target Handle) {
	t.Helper()
	PutHandle(fieldBytes(t, h, obj, name), target)
}

func getRef(t *testing.T, h *Heap, obj Handle, name string) Handle {
	t.Helper()
	return ReadHandle(fieldBytes(t, h, obj, name))
}

func setI32(t *testing.T, h *Heap, obj Handle, name string, v int32) {
	t.Helper()
	binary.LittleEndian.PutUint32(fieldBytes(t, h, obj, name), uint32(v))
}

func getI32(t *testing.T, h *Heap, obj Handle, name string) int32 {
	t.Helper()
	return int32(binary.LittleEndian.Uint32(fieldBytes(t, h, obj, name)))
}

func collectRefs(h *Heap, obj Handle) []Handle {
	var out []Handle
	for ref := range h.Trace(obj) {
		out = append(out, ref)
	}
	return out
}

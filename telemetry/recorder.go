package telemetry

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/heapcore/gc"
)

// ErrBadEventLog indicates an event log that does not decode.
var ErrBadEventLog = errors.New("telemetry: malformed event log")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("telemetry: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Record is one observed heap event.
type Record struct {
	Kind   string `cbor:"1,keyasint"`
	Handle uint64 `cbor:"2,keyasint,omitempty"`
	At     int64  `cbor:"3,keyasint"` // unix nanoseconds
}

// EventLog is the serialized form of a recording.
type EventLog struct {
	Heap    string   `cbor:"1,keyasint"`
	Records []Record `cbor:"2,keyasint"`
}

// Recorder is a gc.Observer that keeps every event in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Event implements gc.Observer.
func (r *Recorder) Event(e gc.Event) {
	rec := Record{Kind: e.Kind.String(), Handle: uint64(e.Handle), At: r.now().UnixNano()}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of the recorded events.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Count returns the number of recorded events of the given kind.
func (r *Recorder) Count(kind gc.EventKind) int {
	name := kind.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Kind == name {
			n++
		}
	}
	return n
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// Encode serializes the recording for heap to canonical CBOR.
func (r *Recorder) Encode(heap uuid.UUID) ([]byte, error) {
	return EncodeEventLog(&EventLog{Heap: heap.String(), Records: r.Records()})
}

// EncodeEventLog serializes an EventLog to CBOR bytes.
func EncodeEventLog(l *EventLog) ([]byte, error) {
	return cborEncMode.Marshal(l)
}

// DecodeEventLog deserializes an EventLog from CBOR bytes.
func DecodeEventLog(data []byte) (*EventLog, error) {
	var l EventLog
	if err := cbor.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadEventLog, err)
	}
	if _, err := uuid.Parse(l.Heap); err != nil {
		return nil, fmt.Errorf("%w: heap id: %w", ErrBadEventLog, err)
	}
	return &l, nil
}

// WriteEventLog writes the recording for heap to path.
func (r *Recorder) WriteEventLog(path string, heap uuid.UUID) error {
	data, err := r.Encode(heap)
	if err != nil {
		return fmt.Errorf("encoding event log: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing event log: %w", err)
	}
	return nil
}

// ReadEventLog reads an event log written by WriteEventLog.
func ReadEventLog(path string) (*EventLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return DecodeEventLog(data)
}

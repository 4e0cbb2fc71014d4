package scenario

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/heapcore/gc"
	"github.com/chazu/heapcore/mapping"
	"github.com/chazu/heapcore/typeinfo"
)

var log = commonlog.GetLogger("heapcore.scenario")

type opFunc func(*Runner, *Step) error

var ops = map[string]opFunc{
	"alloc":       (*Runner).alloc,
	"alloc-array": (*Runner).allocArray,
	"set":         (*Runner).set,
	"set-length":  (*Runner).setLength,
	"root":        (*Runner).root,
	"unroot":      (*Runner).unroot,
	"collect":     (*Runner).collect,
	"reload":      (*Runner).reload,
	"check":       func(*Runner, *Step) error { return nil },
}

// Result summarizes a finished run.
type Result struct {
	Name    string
	Steps   int
	Cycles  []gc.CycleStats
	Reloads int
	Deleted []string
	Stats   gc.Stats
}

// Runner executes scenarios against a heap. Object names persist across
// Run calls on the same Runner.
type Runner struct {
	heap    *gc.Heap
	table   *typeinfo.Table
	objects map[string]gc.Handle

	last        gc.CycleStats
	lastDeleted []gc.Handle
	result      *Result
}

// NewRunner returns a Runner driving heap.
func NewRunner(heap *gc.Heap) *Runner {
	return &Runner{heap: heap, objects: make(map[string]gc.Handle)}
}

// Heap returns the heap driven by the runner.
func (r *Runner) Heap() *gc.Heap { return r.heap }

// Object returns the handle bound to name.
func (r *Runner) Object(name string) (gc.Handle, bool) {
	h, ok := r.objects[name]
	return h, ok
}

// Run executes every step of s in order and stops at the first failure.
// The partial result is returned alongside the error.
func (r *Runner) Run(s *Scenario) (*Result, error) {
	table, err := BuildTypes(s.Types)
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	r.table = table
	r.result = &Result{Name: s.Name}

	for i := range s.Steps {
		st := &s.Steps[i]
		log.Debugf("step %d: %s", i+1, st.Op)
		op, ok := ops[st.Op]
		if !ok {
			return r.finish(), fmt.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
		if err := op(r, st); err != nil {
			return r.finish(), fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		if err := r.check(st); err != nil {
			return r.finish(), fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		r.result.Steps++
	}
	return r.finish(), nil
}

func (r *Runner) finish() *Result {
	r.result.Stats = r.heap.Stats()
	return r.result
}

func (r *Runner) bind(name string, h gc.Handle) {
	if name != "" {
		r.objects[name] = h
	}
}

func (r *Runner) nameOf(h gc.Handle) string {
	for name, bound := range r.objects {
		if bound == h {
			return name
		}
	}
	return h.String()
}

func (r *Runner) object(name string) (gc.Handle, error) {
	h, ok := r.objects[name]
	if !ok || !r.heap.Contains(h) {
		return gc.Nil, fmt.Errorf("%w %q", ErrUnknownObject, name)
	}
	return h, nil
}

// slot resolves the bytes addressed by an object, optional element index and
// optional dotted field path.
func (r *Runner) slot(st *Step) ([]byte, *typeinfo.Type, error) {
	obj, err := r.object(st.Object)
	if err != nil {
		return nil, nil, err
	}

	ty := r.heap.TypeOf(obj)
	var data []byte
	if st.Index != nil {
		arr, ok := r.heap.AsArray(obj)
		if !ok {
			return nil, nil, fmt.Errorf("%s is not an array", st.Object)
		}
		i := *st.Index
		if i < 0 || i >= arr.Length() {
			return nil, nil, fmt.Errorf("%s[%d]: index out of range (length %d)", st.Object, i, arr.Length())
		}
		data, ty = arr.Element(i), arr.ElementType()
	} else {
		if ty.IsArray() {
			return nil, nil, fmt.Errorf("%s is an array; an index is required", st.Object)
		}
		data = r.heap.Data(obj)
	}

	if st.Field == "" {
		return data, ty, nil
	}
	parts := strings.Split(st.Field, ".")
	for i, part := range parts {
		if !ty.IsStruct() || (ty.IsBoxed() && (i > 0 || st.Index != nil)) {
			return nil, nil, fmt.Errorf("%s: cannot select %q from %s", st.Object, part, ty.Name())
		}
		f, ok := ty.Field(part)
		if !ok {
			return nil, nil, fmt.Errorf("%s has no field %q", ty.Name(), part)
		}
		data = data[f.Offset : f.Offset+f.Type.ReferenceLayout().Size]
		ty = f.Type
	}
	return data, ty, nil
}

func (r *Runner) alloc(st *Step) error {
	ty, err := resolveType(r.table, st.Type)
	if err != nil {
		return err
	}
	h, err := r.heap.Alloc(ty)
	if err != nil {
		return err
	}
	r.bind(st.As, h)
	return nil
}

func (r *Runner) allocArray(st *Step) error {
	elem, err := resolveType(r.table, st.Type)
	if err != nil {
		return err
	}
	h, err := r.heap.AllocArray(r.table.Array(elem), st.Length)
	if err != nil {
		return err
	}
	r.bind(st.As, h)
	return nil
}

func (r *Runner) set(st *Step) error {
	data, ty, err := r.slot(st)
	if err != nil {
		return err
	}
	if st.Ref != "" {
		if !ty.IsBoxed() {
			return fmt.Errorf("cannot store a reference in %s", ty.Name())
		}
		target, err := r.object(st.Ref)
		if err != nil {
			return err
		}
		gc.PutHandle(data, target)
		return nil
	}
	p, ok := ty.Primitive()
	if !ok {
		return fmt.Errorf("cannot store a value in %s", ty.Name())
	}
	if st.Value == nil {
		return fmt.Errorf("set needs a value or a ref")
	}
	return encodeValue(p, st.Value, data)
}

func (r *Runner) setLength(st *Step) error {
	obj, err := r.object(st.Object)
	if err != nil {
		return err
	}
	arr, ok := r.heap.AsArray(obj)
	if !ok {
		return fmt.Errorf("%s is not an array", st.Object)
	}
	if st.Length < 0 || st.Length > arr.Capacity() {
		return fmt.Errorf("length %d exceeds capacity %d", st.Length, arr.Capacity())
	}
	arr.SetLength(st.Length)
	return nil
}

func (r *Runner) root(st *Step) error {
	obj, err := r.object(st.Object)
	if err != nil {
		return err
	}
	r.heap.Root(obj)
	return nil
}

func (r *Runner) unroot(st *Step) error {
	obj, err := r.object(st.Object)
	if err != nil {
		return err
	}
	if r.heap.RootCount(obj) == 0 {
		return fmt.Errorf("%s is not rooted", st.Object)
	}
	r.heap.Unroot(obj)
	return nil
}

func (r *Runner) collect(*Step) error {
	r.last = r.heap.CollectCycle()
	r.result.Cycles = append(r.result.Cycles, r.last)
	return nil
}

// reload migrates the heap to a new compilation. Array types of the old
// compilation are carried over when their element type still resolves.
func (r *Runner) reload(st *Step) error {
	next, err := BuildTypes(st.Types)
	if err != nil {
		return fmt.Errorf("types: %w", err)
	}
	old := r.table.Types()
	for _, ty := range old {
		if ty.IsArray() {
			next.Lookup(ty.Name())
		}
	}

	r.lastDeleted = r.heap.Apply(mapping.New(old, next.Types()))
	r.table = next
	r.result.Reloads++
	for _, h := range r.lastDeleted {
		r.result.Deleted = append(r.result.Deleted, r.nameOf(h))
	}
	return nil
}

func (r *Runner) check(st *Step) error {
	e := &st.Expect
	if e.Reclaimed != nil && r.last.Reclaimed != *e.Reclaimed {
		return fmt.Errorf("%w: reclaimed %d, want %d", ErrExpectation, r.last.Reclaimed, *e.Reclaimed)
	}
	if e.Live != nil && r.heap.Len() != *e.Live {
		return fmt.Errorf("%w: %d live objects, want %d", ErrExpectation, r.heap.Len(), *e.Live)
	}
	if e.Bytes != nil && int64(r.heap.Stats().AllocatedBytes) != *e.Bytes {
		return fmt.Errorf("%w: %d bytes allocated, want %d", ErrExpectation, r.heap.Stats().AllocatedBytes, *e.Bytes)
	}
	for _, name := range e.Alive {
		if h, ok := r.objects[name]; !ok || !r.heap.Contains(h) {
			return fmt.Errorf("%w: %s is not alive", ErrExpectation, name)
		}
	}
	for _, name := range e.Freed {
		h, ok := r.objects[name]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownObject, name)
		}
		if r.heap.Contains(h) {
			return fmt.Errorf("%w: %s is still alive", ErrExpectation, name)
		}
	}
	for _, name := range e.Deleted {
		h, ok := r.objects[name]
		if !ok || !slices.Contains(r.lastDeleted, h) {
			return fmt.Errorf("%w: %s was not reported deleted", ErrExpectation, name)
		}
	}

	if e.Type == "" && e.Value == nil && e.Ref == "" && !e.NonNull && !e.Null {
		return nil
	}
	return r.checkSlot(st)
}

func (r *Runner) checkSlot(st *Step) error {
	e := &st.Expect
	data, ty, err := r.slot(st)
	if err != nil {
		return err
	}

	if e.Type != "" {
		got := ty.Name()
		if st.Field == "" && st.Index == nil {
			obj, _ := r.object(st.Object)
			got = r.heap.TypeOf(obj).Name()
		}
		if got != e.Type {
			return fmt.Errorf("%w: type %s, want %s", ErrExpectation, got, e.Type)
		}
	}

	if e.Value != nil {
		p, ok := ty.Primitive()
		if !ok {
			return fmt.Errorf("%s holds no value", ty.Name())
		}
		if got := decodeValue(p, data); !valuesEqual(got, e.Value) {
			return fmt.Errorf("%w: value %v, want %v", ErrExpectation, got, e.Value)
		}
	}

	if e.Ref != "" || e.NonNull || e.Null {
		if !ty.IsBoxed() {
			return fmt.Errorf("%s holds no reference", ty.Name())
		}
		got := gc.ReadHandle(data)
		switch {
		case e.Null && got != gc.Nil:
			return fmt.Errorf("%w: reference %s, want nil", ErrExpectation, got)
		case e.NonNull && (got == gc.Nil || !r.heap.Contains(got)):
			return fmt.Errorf("%w: reference %s is not a live object", ErrExpectation, got)
		case e.Ref != "":
			want, err := r.object(e.Ref)
			if err != nil {
				return err
			}
			if got != want {
				return fmt.Errorf("%w: reference %s, want %s (%s)", ErrExpectation, got, e.Ref, want)
			}
		}
	}
	return nil
}

package pulse

import (
	"fmt"
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// Source is a mutable reactive cell. Reading it inside a reaction wires a
// dependency edge; writing it bumps its version and propagates staleness to
// subscribers without running any user code itself.
type Source[T any] struct {
	node
	val    T
	equals func(a, b T) bool
	subs   mapset.Set[subscriber]
}

type SourceOption[T any] func(*Source[T])

// WithEquals overrides the equality check used to short-circuit writes.
func WithEquals[T any](fn func(a, b T) bool) SourceOption[T] {
	return func(s *Source[T]) { s.equals = fn }
}

// Frozen marks the source as holding an opaque value: the cell never tracks
// interior mutation, so replacing the whole value is the only way to
// propagate. Writes of a structurally equal replacement are still no-ops.
func Frozen[T any]() SourceOption[T] {
	return func(s *Source[T]) { s.flags |= flagFrozen }
}

// NewSource creates a cell holding initial. Created inside an Effect's run
// it becomes a child of that Effect and is destroyed with it; created at
// top level it persists until Discard.
func NewSource[T any](rt *Runtime, initial T, opts ...SourceOption[T]) *Source[T] {
	s := &Source[T]{
		node: rt.newNode(),
		val:  initial,
		subs: mapset.NewSet[subscriber](),
	}
	s.equals = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	for _, opt := range opts {
		opt(s)
	}
	if owner := rt.activeOwner; owner != nil {
		s.depth = owner.depth + 1
		owner.adopt(s)
	}
	rt.register(s)
	return s
}

// Value reads the cell, registering a dependency edge when a reaction is
// active. Reads always observe the most recent write, regardless of
// whether the write's effects have flushed yet.
func (s *Source[T]) Value() T {
	if s.status != statusDestroyed {
		s.rt.track(s)
	}
	return s.val
}

// Peek reads the cell without creating a dependency edge.
func (s *Source[T]) Peek() T { return s.val }

// Set stores a new value. Equal values are a no-op. Otherwise the version
// is bumped and staleness propagates: dependent Effects are marked dirty
// and queued (synchronous ones run inline), dependent Deriveds are marked
// maybe-dirty. Outside a batch the queue is drained before Set returns, so
// any error raised by a re-run surfaces here.
func (s *Source[T]) Set(v T) error {
	if s.status == statusDestroyed {
		return nil
	}
	if s.rt.computeDepth > 0 {
		return fmt.Errorf("set source %d: %w", s.id, ErrWriteDuringCompute)
	}
	if s.equals(s.val, v) {
		return nil
	}
	s.val = v
	s.ver++
	if err := s.rt.fanOut(s.subs, statusDirty); err != nil {
		return err
	}
	return s.rt.maybeFlush()
}

// Update applies fn to the current value and stores the result.
func (s *Source[T]) Update(fn func(T) T) error {
	return s.Set(fn(s.val))
}

// Discard removes a top-level source from the graph. Sources owned by an
// Effect are discarded automatically when their owner is destroyed.
func (s *Source[T]) Discard() { s.destroy() }

func (s *Source[T]) depVersion() uint64 { return s.ver }
func (s *Source[T]) settle() error      { return nil }

func (s *Source[T]) attach(sub subscriber) { s.subs.Add(sub) }
func (s *Source[T]) detach(sub subscriber) { s.subs.Remove(sub) }

func (s *Source[T]) destroy() {
	if s.status == statusDestroyed {
		return
	}
	s.subs.Clear()
	s.status = statusDestroyed
	s.rt.unregister(&s.node)
}

func (s *Source[T]) graphLabel() string {
	if s.flags&flagFrozen != 0 {
		return "source(frozen)"
	}
	return "source"
}

func (s *Source[T]) graphDeps() []uint64 { return nil }
func (s *Source[T]) graphOwns() []uint64 { return nil }

package pulse

import (
	"fmt"
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// Derived is a memoized computation over other reactive nodes. It is lazy:
// nothing recomputes until somebody reads it, and a read only recomputes
// when a recorded dependency's version actually moved since the last run.
type Derived[T any] struct {
	node
	fn     func(old T) (T, error)
	val    T
	equals func(a, b T) bool
	deps   []depEntry
	subs   mapset.Set[subscriber]
}

type DerivedOption[T any] func(*Derived[T])

// WithDerivedEquals overrides the output equality check that decides
// whether a recompute propagates to subscribers.
func WithDerivedEquals[T any](fn func(a, b T) bool) DerivedOption[T] {
	return func(d *Derived[T]) { d.equals = fn }
}

// NewDerived creates a memoized computation. fn receives the previously
// cached value (the zero value on the first run) and must not write any
// Source. A Derived always belongs to the Effect that is the current owner;
// creating one with no owner is ErrOrphanReaction.
func NewDerived[T any](rt *Runtime, fn func(old T) (T, error), opts ...DerivedOption[T]) (*Derived[T], error) {
	owner := rt.activeOwner
	if owner == nil {
		return nil, fmt.Errorf("new derived: %w", ErrOrphanReaction)
	}
	d := &Derived[T]{
		node: rt.newNode(),
		fn:   fn,
		subs: mapset.NewSet[subscriber](),
	}
	d.equals = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	for _, opt := range opts {
		opt(d)
	}
	d.depth = owner.depth + 1
	d.status = statusDirty // computed lazily on first read
	owner.adopt(d)
	rt.register(d)
	return d, nil
}

// Value returns the cached value, recomputing first only if a dependency
// genuinely changed. The read registers a dependency edge when a reaction
// is active.
func (d *Derived[T]) Value() (T, error) {
	if d.status == statusDestroyed {
		return d.val, nil
	}
	if err := d.settle(); err != nil {
		var zero T
		return zero, err
	}
	d.rt.track(d)
	return d.val, nil
}

// Peek reads the settled value without creating a dependency edge.
func (d *Derived[T]) Peek() (T, error) {
	if d.status == statusDestroyed {
		return d.val, nil
	}
	if err := d.settle(); err != nil {
		var zero T
		return zero, err
	}
	return d.val, nil
}

func (d *Derived[T]) depVersion() uint64 { return d.ver }

// settle resolves maybe-dirty lazily: recorded deps are settled in order
// and their versions compared against what the last run observed. If none
// moved, the node is clean without recomputing; this is what collapses a
// diamond into a single recompute.
func (d *Derived[T]) settle() error {
	switch d.status {
	case statusClean, statusDestroyed:
		return nil
	case statusMaybeDirty:
		changed, err := staleDeps(d.deps)
		if err != nil {
			return err
		}
		if !changed {
			d.status = statusClean
			return nil
		}
		d.status = statusDirty
	}
	return d.recompute()
}

func (d *Derived[T]) recompute() error {
	if d.flags&flagRunning != 0 {
		return fmt.Errorf("derived %d reads itself: %w", d.id, ErrCyclicDependency)
	}
	d.flags |= flagRunning
	rt := d.rt

	// The dep set is rebuilt from scratch by what this run actually reads.
	detachAll(d, &d.deps)

	prev := rt.activeReaction
	rt.activeReaction = d
	rt.computeDepth++
	v, err := d.fn(d.val)
	rt.computeDepth--
	rt.activeReaction = prev
	d.flags &^= flagRunning

	if err != nil {
		d.status = statusDirty
		return fmt.Errorf("derived compute: %w", err)
	}
	if !d.equals(d.val, v) {
		// Only an actual output change bumps the version; an upstream
		// change that produced an equal output never cascades further.
		d.val = v
		d.ver++
	}
	d.status = statusClean
	return nil
}

func (d *Derived[T]) notify(st status) error {
	switch d.status {
	// maybe-dirty means subscribers were already told and nothing has
	// resolved since then.
	case statusMaybeDirty, statusDestroyed:
		return nil
	case statusClean:
		d.status = statusMaybeDirty
	}
	// A node left dirty by a failed compute still forwards the wake-up,
	// so subscribers dropped from the queue by that error hear about the
	// next upstream write.
	return d.rt.fanOut(d.subs, statusMaybeDirty)
}

func (d *Derived[T]) recordDep(dep dependency) { recordDep(&d.deps, dep) }

func (d *Derived[T]) attach(sub subscriber) { d.subs.Add(sub) }
func (d *Derived[T]) detach(sub subscriber) { d.subs.Remove(sub) }

func (d *Derived[T]) destroy() {
	if d.status == statusDestroyed {
		return
	}
	detachAll(d, &d.deps)
	d.subs.Clear()
	d.fn = nil
	d.status = statusDestroyed
	d.rt.unregister(&d.node)
}

func (d *Derived[T]) graphLabel() string { return "derived" }

func (d *Derived[T]) graphDeps() []uint64 {
	ids := make([]uint64, 0, len(d.deps))
	for _, de := range d.deps {
		ids = append(ids, de.dep.base().id)
	}
	return ids
}

func (d *Derived[T]) graphOwns() []uint64 { return nil }

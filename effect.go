package pulse

import "fmt"

// EffectKind selects the scheduler wave an effect runs in. The set is
// closed; the flush loop dispatches on it through a priority table.
type EffectKind uint8

const (
	// KindRoot is an explicit top-level owner. Roots run inline on creation
	// and are never adopted by an enclosing effect; the caller destroys
	// them explicitly.
	KindRoot EffectKind = iota
	// KindPre runs before the render wave of the same flush.
	KindPre
	// KindRender performs host mutations.
	KindRender
	// KindBranch is a structural (conditional/loop) boundary. It schedules
	// with the render wave and bounds "local" transitions.
	KindBranch
	// KindUser is a plain user reaction, run after the render wave. A user
	// effect created during its owner's first construction therefore runs
	// once, after that construction has settled.
	KindUser
)

func (k EffectKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindPre:
		return "pre"
	case KindRender:
		return "render"
	case KindBranch:
		return "branch"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

func (k EffectKind) priority() int {
	switch k {
	case KindRoot:
		return 0
	case KindPre:
		return 1
	case KindRender, KindBranch:
		return 2
	default:
		return 3
	}
}

// Teardown is an optional cleanup closure returned by an effect's run. It
// is invoked before the next re-run and on destroy.
type Teardown func()

// EffectFunc is the body of an effect.
type EffectFunc func() (Teardown, error)

// HostHandle is an opaque resource owned by an effect, typically a handle
// into the host-mutation layer. It is released exactly once, on destroy.
type HostHandle interface {
	Release()
}

// Effect is a scheduled or synchronous reaction. It exclusively owns every
// node created during its run; a re-run tears the previous run's subtree
// down wholesale and rebuilds both children and dependency edges from what
// the new run actually does.
type Effect struct {
	node
	kind EffectKind
	fn   EffectFunc

	parent   *Effect
	children []owned
	deps     []depEntry

	teardown    Teardown
	transitions []Transition
	host        HostHandle
	pending     *pauseState

	runEpoch      uint64
	runsThisFlush int
}

type EffectOption func(*Effect)

// WithSync makes the effect run inline on creation and on every write that
// dirties it, bypassing the scheduler.
func WithSync() EffectOption {
	return func(e *Effect) { e.flags |= flagSync }
}

// NewEffect creates an effect of the given kind. Tracked effects require an
// owning Effect or root to be the current reaction context; roots do not.
// Roots and synchronous effects execute inline before returning, everything
// else is queued dirty for the next flush.
func NewEffect(rt *Runtime, kind EffectKind, fn EffectFunc, opts ...EffectOption) (*Effect, error) {
	owner := rt.activeOwner
	if owner == nil && kind != KindRoot {
		return nil, fmt.Errorf("new %s effect: %w", kind, ErrOrphanReaction)
	}
	e := &Effect{
		node: rt.newNode(),
		kind: kind,
		fn:   fn,
	}
	for _, opt := range opts {
		opt(e)
	}
	if owner != nil && kind != KindRoot {
		e.parent = owner
		e.depth = owner.depth + 1
		owner.adopt(e)
	}
	rt.register(e)
	e.status = statusDirty
	if kind == KindRoot || e.flags&flagSync != 0 {
		if err := e.execute(); err != nil {
			return e, err
		}
		return e, rt.maybeFlush()
	}
	rt.enqueue(e)
	return e, nil
}

// NewRoot creates and runs a root effect, the bootstrap owner under which
// tracked nodes are created.
func NewRoot(rt *Runtime, fn EffectFunc) (*Effect, error) {
	return NewEffect(rt, KindRoot, fn)
}

// HasRun reports whether the effect's body has completed at least once.
// Host layers use this to distinguish mount from update.
func (e *Effect) HasRun() bool { return e.flags&flagRanOnce != 0 }

// AttachHost hands the effect an owned host resource, released on destroy.
// Attaching over an existing handle releases the old one first.
func (e *Effect) AttachHost(h HostHandle) {
	if e.host != nil {
		e.host.Release()
	}
	e.host = h
}

func (e *Effect) adopt(c owned) { e.children = append(e.children, c) }

func (e *Effect) disown(c owned) {
	for i, have := range e.children {
		if have == c {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}

func (e *Effect) recordDep(dep dependency) { recordDep(&e.deps, dep) }

func (e *Effect) notify(st status) error {
	if e.status == statusDestroyed {
		return nil
	}
	if e.status < st {
		e.status = st
	}
	if e.flags&flagInert != 0 {
		// Stays marked; Resume reconciles whatever went stale while inert.
		return nil
	}
	if e.flags&flagSync != 0 {
		if e.flags&flagRunning != 0 {
			return fmt.Errorf("synchronous effect %d re-dirties itself: %w", e.id, ErrCyclicDependency)
		}
		return e.refresh()
	}
	e.rt.enqueue(e)
	return nil
}

// refresh settles a maybe-dirty effect against its recorded dep versions
// and re-runs it only if something genuinely changed.
func (e *Effect) refresh() error {
	if e.status == statusDestroyed || e.flags&flagInert != 0 {
		return nil
	}
	if e.status == statusMaybeDirty {
		changed, err := staleDeps(e.deps)
		if err != nil {
			return err
		}
		if !changed {
			e.status = statusClean
			return nil
		}
		e.status = statusDirty
	}
	if e.status != statusDirty {
		return nil
	}
	return e.execute()
}

func (e *Effect) execute() error {
	rt := e.rt

	if e.teardown != nil {
		td := e.teardown
		e.teardown = nil
		td()
	}
	// The previous run's subtree and edges go wholesale; a run that takes a
	// different branch this time naturally sheds the old branch's nodes.
	e.destroyChildren()
	detachAll(e, &e.deps)

	// Clean before the run so a write inside the body re-dirties properly.
	e.status = statusClean
	e.flags |= flagRunning

	prevReaction, prevOwner := rt.activeReaction, rt.activeOwner
	rt.activeReaction, rt.activeOwner = e, e

	var td Teardown
	var err error
	func() {
		defer func() {
			rt.activeReaction, rt.activeOwner = prevReaction, prevOwner
			e.flags &^= flagRunning
		}()
		td, err = e.fn()
	}()
	if err != nil {
		// Children created before the error stay in place; the next re-run
		// or an explicit destroy sweeps them.
		return fmt.Errorf("%s effect run: %w", e.kind, err)
	}
	e.teardown = td
	e.flags |= flagRanOnce
	return nil
}

func (e *Effect) destroyChildren() {
	for _, c := range e.children {
		c.destroy()
	}
	e.children = e.children[:0]
}

// Destroy tears the effect and its whole subtree down immediately. See
// Pause for deferred, transition-aware teardown.
func (e *Effect) Destroy() {
	if e.status == statusDestroyed {
		return
	}
	if e.parent != nil {
		e.parent.disown(e)
	}
	e.destroy()
}

func (e *Effect) destroy() {
	if e.status == statusDestroyed {
		return
	}
	e.destroyChildren()
	detachAll(e, &e.deps)
	if e.teardown != nil {
		td := e.teardown
		e.teardown = nil
		td()
	}
	if e.host != nil {
		e.host.Release()
		e.host = nil
	}
	for _, t := range e.transitions {
		t.Stop()
	}
	e.transitions = nil
	if ps := e.pending; ps != nil {
		ps.cancelled = true
		e.pending = nil
	}
	e.fn = nil
	e.parent = nil
	e.children = nil
	e.status = statusDestroyed
	e.rt.unregister(&e.node)
}

func (e *Effect) graphLabel() string { return "effect:" + e.kind.String() }

func (e *Effect) graphDeps() []uint64 {
	ids := make([]uint64, 0, len(e.deps))
	for _, de := range e.deps {
		ids = append(ids, de.dep.base().id)
	}
	return ids
}

func (e *Effect) graphOwns() []uint64 {
	ids := make([]uint64, 0, len(e.children))
	for _, c := range e.children {
		ids = append(ids, c.base().id)
	}
	return ids
}

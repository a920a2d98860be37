package pulse

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Runtime holds one independent reactive graph: the current reaction slots,
// the flush queue and the registry of live nodes. All graph operations are
// single-threaded; a Runtime must not be shared across goroutines without
// external serialization.
type Runtime struct {
	nextID uint64

	// activeReaction is the node whose run is currently reading values, the
	// slot consulted to wire new dependency edges. activeOwner is the Effect
	// that adopts nodes created right now; it stays on the outer Effect
	// while a Derived computes.
	activeReaction reaction
	activeOwner    *Effect

	// pauseStack implements untracked reads with push/pop discipline.
	pauseStack []reaction

	computeDepth int
	batchDepth   int

	flushing   bool
	flushEpoch uint64
	queue      []*Effect

	nodes map[uint64]graphNode
}

// New creates an empty runtime.
func New() *Runtime {
	return &Runtime{
		nodes: map[uint64]graphNode{},
	}
}

func (rt *Runtime) newNode() node {
	rt.nextID++
	return node{rt: rt, id: rt.nextID}
}

func (rt *Runtime) register(gn graphNode) { rt.nodes[gn.base().id] = gn }
func (rt *Runtime) unregister(n *node)    { delete(rt.nodes, n.id) }

// track wires a dependency edge between d and the active reaction, if any.
func (rt *Runtime) track(d dependency) {
	if r := rt.activeReaction; r != nil {
		r.recordDep(d)
		d.attach(r)
	}
}

// fanOut pushes a status change to every subscriber of a dependency. The
// set is snapshotted first (a synchronous effect running inline may attach
// or detach subscribers mid-walk) and ordered by creation id so inline
// sync runs fire deterministically, matching the sorted flush queue.
func (rt *Runtime) fanOut(subs mapset.Set[subscriber], st status) error {
	snap := subs.ToSlice()
	sort.Slice(snap, func(i, j int) bool {
		return snap[i].base().id < snap[j].base().id
	})
	for _, sub := range snap {
		if err := sub.notify(st); err != nil {
			return err
		}
	}
	return nil
}

// Untrack runs fn with dependency registration suspended: reads made inside
// it do not create edges.
func (rt *Runtime) Untrack(fn func()) {
	rt.pauseTracking()
	defer rt.resumeTracking()
	fn()
}

// Untracked is Untrack for reads that produce a value.
func Untracked[T any](rt *Runtime, fn func() T) T {
	rt.pauseTracking()
	defer rt.resumeTracking()
	return fn()
}

func (rt *Runtime) pauseTracking() {
	rt.pauseStack = append(rt.pauseStack, rt.activeReaction)
	rt.activeReaction = nil
}

func (rt *Runtime) resumeTracking() {
	last := len(rt.pauseStack) - 1
	rt.activeReaction = rt.pauseStack[last]
	rt.pauseStack = rt.pauseStack[:last]
}

// StartBatch suspends implicit flushing until the matching EndBatch.
func (rt *Runtime) StartBatch() { rt.batchDepth++ }

// EndBatch closes the innermost batch; the outermost EndBatch drains the
// queue accumulated by the writes inside it in a single flush pass.
func (rt *Runtime) EndBatch() error {
	rt.batchDepth--
	if rt.batchDepth == 0 {
		return rt.flush()
	}
	return nil
}

// Batch coalesces any number of writes inside fn into a single flush.
func (rt *Runtime) Batch(fn func()) error {
	rt.StartBatch()
	fn()
	return rt.EndBatch()
}

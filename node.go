package pulse

type status uint8

const (
	statusClean      status = iota // value is valid, no need to recompute
	statusMaybeDirty               // an upstream node may have changed, verify before recomputing
	statusDirty                    // known stale, must recompute/re-run
	statusDestroyed                // torn down, must never be revisited
)

func (s status) String() string {
	switch s {
	case statusClean:
		return "clean"
	case statusMaybeDirty:
		return "maybe-dirty"
	case statusDirty:
		return "dirty"
	case statusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type nodeFlags uint16

const (
	flagInert nodeFlags = 1 << iota
	flagRanOnce
	flagSync
	flagRunning
	flagNotified
	flagFrozen
)

// node is the base embedded in every graph participant.
type node struct {
	rt     *Runtime
	id     uint64
	ver    uint64
	depth  int
	status status
	flags  nodeFlags
}

func (n *node) base() *node { return n }

// dependency is anything a reaction can read: a Source or a Derived.
type dependency interface {
	graphNode
	depVersion() uint64
	// settle brings the dependency up to date; a no-op for plain Sources,
	// a lazy maybe-dirty resolution (and possible recompute) for Deriveds.
	settle() error
	attach(sub subscriber)
	detach(sub subscriber)
}

// subscriber receives push notifications from a dependency it read.
type subscriber interface {
	graphNode
	notify(st status) error
}

// reaction is a subscriber that tracks the dependencies read during its run.
type reaction interface {
	subscriber
	recordDep(d dependency)
}

// owned is a node exclusively owned by an Effect and destroyed with it.
type owned interface {
	graphNode
	destroy()
}

// depEntry is one recorded dependency edge plus the version observed when
// it was read. The version is what lets maybe-dirty resolution decide
// whether anything actually changed without recomputing.
type depEntry struct {
	dep dependency
	ver uint64
}

func recordDep(deps *[]depEntry, d dependency) {
	for i := range *deps {
		if (*deps)[i].dep == d {
			(*deps)[i].ver = d.depVersion()
			return
		}
	}
	*deps = append(*deps, depEntry{dep: d, ver: d.depVersion()})
}

// staleDeps settles every recorded dependency and reports whether any of
// them moved past the version observed during the last run.
func staleDeps(deps []depEntry) (bool, error) {
	for _, de := range deps {
		if err := de.dep.settle(); err != nil {
			return false, err
		}
		if de.dep.depVersion() != de.ver {
			return true, nil
		}
	}
	return false, nil
}

func detachAll(sub subscriber, deps *[]depEntry) {
	for _, de := range *deps {
		de.dep.detach(sub)
	}
	*deps = (*deps)[:0]
}

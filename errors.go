package pulse

import "errors"

var (
	// ErrOrphanReaction means a tracked Effect or Derived was created while
	// no owning Effect or root was the current reaction context.
	ErrOrphanReaction = errors.New("reactive node created outside any owning reaction")

	// ErrCyclicDependency means maybe-dirty resolution or the flush loop
	// detected unbounded self-redirtying.
	ErrCyclicDependency = errors.New("cyclic dependency in reactive graph")

	// ErrWriteDuringCompute means a Derived's compute function attempted to
	// write a Source. Computes must be pure.
	ErrWriteDuringCompute = errors.New("source written during derived compute")
)

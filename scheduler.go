package pulse

import (
	"fmt"
	"sort"
)

// maxRunsPerFlush bounds how often a single effect may re-run inside one
// flush before the runtime reports a cycle instead of looping.
const maxRunsPerFlush = 100

func (rt *Runtime) enqueue(e *Effect) {
	if e.flags&flagNotified != 0 {
		return
	}
	e.flags |= flagNotified
	rt.queue = append(rt.queue, e)
}

// maybeFlush drains the queue unless a batch is open or a flush is already
// running; writes landing mid-flush are absorbed into that flush's later
// passes instead of recursing.
func (rt *Runtime) maybeFlush() error {
	if rt.batchDepth > 0 || rt.flushing {
		return nil
	}
	return rt.flush()
}

// Flush synchronously drains the pending queue.
func (rt *Runtime) Flush() error { return rt.flush() }

// FlushNow runs fn with its writes batched, then synchronously drains the
// queue and returns fn's result: the escape hatch for callers that need
// immediate settlement instead of the implicit batching boundary.
func FlushNow[T any](rt *Runtime, fn func() (T, error)) (T, error) {
	var out T
	if fn != nil {
		rt.StartBatch()
		v, err := fn()
		if flushErr := rt.EndBatch(); err == nil {
			err = flushErr
		}
		if err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	}
	return out, rt.flush()
}

func (rt *Runtime) flush() error {
	if rt.flushing {
		return nil
	}
	rt.flushing = true
	defer func() { rt.flushing = false }()
	rt.flushEpoch++

	for len(rt.queue) > 0 {
		batch := rt.queue
		rt.queue = nil
		sortBatch(batch)
		for i, e := range batch {
			e.flags &^= flagNotified
			if e.status == statusDestroyed || e.flags&flagInert != 0 {
				continue
			}
			if e.runEpoch != rt.flushEpoch {
				e.runEpoch = rt.flushEpoch
				e.runsThisFlush = 0
			}
			e.runsThisFlush++
			if e.runsThisFlush > maxRunsPerFlush {
				rt.queue = append(rt.queue, batch[i+1:]...)
				return fmt.Errorf("%s effect %d re-dirtied %d times in one flush: %w",
					e.kind, e.id, e.runsThisFlush, ErrCyclicDependency)
			}
			if err := e.refresh(); err != nil {
				// Effects already run this pass stay applied; the rest stay
				// queued for the next flush attempt.
				rt.queue = append(rt.queue, batch[i+1:]...)
				return err
			}
		}
	}
	return nil
}

// sortBatch orders one flush pass: kind priority first (pre, then
// render/branch, then user), then ownership depth so parents run before
// the children they may be about to discard, then creation order. The
// result is deterministic no matter what order the triggering writes
// happened in.
func sortBatch(batch []*Effect) {
	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i], batch[j]
		if pa, pb := a.kind.priority(), b.kind.priority(); pa != pb {
			return pa < pb
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.id < b.id
	})
}

package pulse

// Transition is an external enter/exit animation hook attached to an
// Effect. The runtime consults transitions only during Pause and Resume:
// Exit receives a completion callback the owner must invoke exactly once,
// Stop must be safe to call at any point, and Global reports whether the
// transition plays even when the pause originated outside its own branch
// family.
type Transition interface {
	Enter()
	Exit(done func())
	Stop()
	Global() bool
}

// AddTransition attaches a transition to the effect. Transitions survive
// re-runs and are stopped when the effect is destroyed.
func (e *Effect) AddTransition(t Transition) {
	e.transitions = append(e.transitions, t)
}

// pauseState tracks one deferred teardown: how many exit transitions are
// still playing and whether an intervening Resume cancelled the destroy.
type pauseState struct {
	remaining  int
	cancelled  bool
	onComplete func()
}

// Pause marks the subtree inert instead of destroying it, letting exit
// transitions finish first. Global transitions always play; local ones play
// only while the walk has not crossed into a nested branch boundary. Once
// every collected transition signals completion the subtree is destroyed
// and onComplete fires. A Resume before completion cancels the pending
// destroy. The subtree stays fully observable while paused, but none of
// its effects re-run.
func (e *Effect) Pause(onComplete func()) {
	if e.status == statusDestroyed || e.pending != nil || e.flags&flagInert != 0 {
		return
	}
	var exits []Transition
	e.collectPause(true, &exits)

	ps := &pauseState{remaining: len(exits), onComplete: onComplete}
	e.pending = ps
	if ps.remaining == 0 {
		e.finishPause(ps)
		return
	}
	for _, t := range exits {
		fired := false
		t.Exit(func() {
			if fired || ps.cancelled {
				return
			}
			fired = true
			ps.remaining--
			if ps.remaining == 0 {
				e.finishPause(ps)
			}
		})
	}
}

func (e *Effect) collectPause(localOK bool, exits *[]Transition) {
	if e.status == statusDestroyed || e.flags&flagInert != 0 {
		// Independently paused subtrees keep their own pending destroy.
		return
	}
	e.flags |= flagInert
	for _, t := range e.transitions {
		if t.Global() || localOK {
			*exits = append(*exits, t)
		}
	}
	for _, c := range e.children {
		if ce, ok := c.(*Effect); ok {
			ce.collectPause(localOK && ce.kind != KindBranch, exits)
			continue
		}
		c.base().flags |= flagInert
	}
}

func (e *Effect) finishPause(ps *pauseState) {
	if ps.cancelled {
		return
	}
	e.pending = nil
	onComplete := ps.onComplete
	e.Destroy()
	if onComplete != nil {
		onComplete()
	}
}

// Resume clears the inert flags set by Pause, immediately re-executing any
// node whose dependencies changed while it was inert, then fires the enter
// transitions of eligible nodes. Resuming before the exit transitions
// complete cancels the pending destroy and leaves the subtree live.
func (e *Effect) Resume() error {
	if e.status == statusDestroyed {
		return nil
	}
	if ps := e.pending; ps != nil {
		ps.cancelled = true
		e.pending = nil
	}
	if e.flags&flagInert == 0 {
		return nil
	}
	var enters []Transition
	if err := e.resumeWalk(true, &enters); err != nil {
		return err
	}
	for _, t := range enters {
		t.Enter()
	}
	return e.maybeFlushAfterResume()
}

func (e *Effect) resumeWalk(localOK bool, enters *[]Transition) error {
	if e.status == statusDestroyed {
		return nil
	}
	e.flags &^= flagInert
	// Reconcile state deferred while inert before descending. The run may
	// rebuild the subtree, in which case the fresh children are live and
	// the walk below sees nothing inert.
	if e.status != statusClean {
		if err := e.refresh(); err != nil {
			return err
		}
	}
	for _, c := range e.children {
		if ce, ok := c.(*Effect); ok {
			if ce.pending != nil || ce.flags&flagInert == 0 {
				continue
			}
			if err := ce.resumeWalk(localOK && ce.kind != KindBranch, enters); err != nil {
				return err
			}
			continue
		}
		c.base().flags &^= flagInert
	}
	for _, t := range e.transitions {
		if t.Global() || localOK {
			*enters = append(*enters, t)
		}
	}
	return nil
}

func (e *Effect) maybeFlushAfterResume() error {
	// Re-executing inert nodes may have queued downstream work.
	return e.rt.maybeFlush()
}

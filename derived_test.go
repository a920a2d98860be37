package pulse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsegraph/pulse"
)

// a diamond a -> (b, c) -> d should recompute d exactly once per write
func TestDiamondCollapsesToOneRecompute(t *testing.T) {
	rt := pulse.New()
	var (
		a       *pulse.Source[int]
		d       *pulse.Derived[int]
		dRuns   int
		effSeen []int
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, 1)
		b := newDerived(t, rt, func(int) (int, error) {
			return a.Value() * 2, nil
		})
		c := newDerived(t, rt, func(int) (int, error) {
			return a.Value() + 1, nil
		})
		d = newDerived(t, rt, func(int) (int, error) {
			dRuns++
			bv, err := b.Value()
			if err != nil {
				return 0, err
			}
			cv, err := c.Value()
			if err != nil {
				return 0, err
			}
			return bv + cv, nil
		})
		newEffect(t, rt, pulse.KindUser, func() (pulse.Teardown, error) {
			v, err := d.Value()
			effSeen = append(effSeen, v)
			return nil, err
		})
		return nil, nil
	})
	require.Equal(t, 1, dRuns)
	require.Equal(t, []int{4}, effSeen)

	require.NoError(t, a.Set(2))
	assert.Equal(t, 2, dRuns, "one write, one recompute of d, not two")
	assert.Equal(t, []int{4, 7}, effSeen)
}

// reading an unchanged derived twice should not re-invoke compute
func TestDerivedMemoizes(t *testing.T) {
	rt := pulse.New()
	var (
		a    *pulse.Source[int]
		d    *pulse.Derived[int]
		runs int
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, 3)
		d = newDerived(t, rt, func(int) (int, error) {
			runs++
			return a.Value() * a.Value(), nil
		})
		return nil, nil
	})

	assert.Equal(t, 9, read(t, d))
	assert.Equal(t, 9, read(t, d))
	assert.Equal(t, 1, runs)

	require.NoError(t, a.Set(4))
	assert.Equal(t, 16, read(t, d))
	assert.Equal(t, 16, read(t, d))
	assert.Equal(t, 2, runs)
}

// an equal recompute output should not cascade to subscribers
func TestDerivedOutputStabilityShortCircuit(t *testing.T) {
	rt := pulse.New()
	var (
		a        *pulse.Source[int]
		positive *pulse.Derived[bool]
		effRuns  int
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, 1)
		positive = newDerived(t, rt, func(bool) (bool, error) {
			return a.Value() > 0, nil
		})
		newEffect(t, rt, pulse.KindUser, func() (pulse.Teardown, error) {
			_, err := positive.Value()
			effRuns++
			return nil, err
		})
		return nil, nil
	})
	require.Equal(t, 1, effRuns)

	require.NoError(t, a.Set(2)) // still positive
	assert.Equal(t, 1, effRuns, "unchanged output must not dirty subscribers")

	require.NoError(t, a.Set(-1))
	assert.Equal(t, 2, effRuns)
}

// a derived should drop edges to sources its latest run did not read
func TestDerivedRebuildsDepsEachRun(t *testing.T) {
	rt := pulse.New()
	var (
		useA       *pulse.Source[bool]
		a, b       *pulse.Source[int]
		d          *pulse.Derived[int]
		runs, effs int
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		useA = pulse.NewSource(rt, true)
		a = pulse.NewSource(rt, 1)
		b = pulse.NewSource(rt, 100)
		d = newDerived(t, rt, func(int) (int, error) {
			runs++
			if useA.Value() {
				return a.Value(), nil
			}
			return b.Value(), nil
		})
		newEffect(t, rt, pulse.KindUser, func() (pulse.Teardown, error) {
			_, err := d.Value()
			effs++
			return nil, err
		})
		return nil, nil
	})
	require.Equal(t, 1, runs)

	require.NoError(t, useA.Set(false))
	require.Equal(t, 2, runs)

	// The a edge is stale now; writing a must not recompute.
	require.NoError(t, a.Set(2))
	assert.Equal(t, 2, runs)

	require.NoError(t, b.Set(200))
	assert.Equal(t, 3, runs)
}

// writing a source from inside compute is a contract violation
func TestWriteDuringComputeFails(t *testing.T) {
	rt := pulse.New()
	var (
		a *pulse.Source[int]
		d *pulse.Derived[int]
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, 1)
		d = newDerived(t, rt, func(int) (int, error) {
			if err := a.Set(99); err != nil {
				return 0, err
			}
			return a.Value(), nil
		})
		return nil, nil
	})

	_, err := d.Value()
	assert.ErrorIs(t, err, pulse.ErrWriteDuringCompute)
	assert.Equal(t, 1, a.Peek(), "the rejected write must not land")
}

// a derived that reads itself should fail instead of recursing forever
func TestDerivedSelfReadIsCyclic(t *testing.T) {
	rt := pulse.New()
	var d *pulse.Derived[int]
	newRoot(t, rt, func() (pulse.Teardown, error) {
		d = newDerived(t, rt, func(int) (int, error) {
			v, err := d.Value()
			return v + 1, err
		})
		return nil, nil
	})

	_, err := d.Value()
	assert.ErrorIs(t, err, pulse.ErrCyclicDependency)
}

// creating a derived outside any owner should fail
func TestDerivedRequiresOwner(t *testing.T) {
	rt := pulse.New()
	_, err := pulse.NewDerived(rt, func(int) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, pulse.ErrOrphanReaction)
}

// a custom output equality should widen the short-circuit
func TestDerivedCustomEquals(t *testing.T) {
	rt := pulse.New()
	var (
		a       *pulse.Source[int]
		effRuns int
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, 1)
		// Buckets of ten: 11 -> 19 is the same output.
		bucket, err := pulse.NewDerived(rt, func(int) (int, error) {
			return a.Value(), nil
		}, pulse.WithDerivedEquals(func(x, y int) bool {
			return x/10 == y/10
		}))
		require.NoError(t, err)
		newEffect(t, rt, pulse.KindUser, func() (pulse.Teardown, error) {
			_, err := bucket.Value()
			effRuns++
			return nil, err
		})
		return nil, nil
	})
	require.Equal(t, 1, effRuns)

	require.NoError(t, a.Set(9))
	assert.Equal(t, 1, effRuns, "same bucket, no cascade")
	require.NoError(t, a.Set(25))
	assert.Equal(t, 2, effRuns)
}

// a compute error should surface from the read that forced the recompute
func TestDerivedComputeErrorPropagates(t *testing.T) {
	rt := pulse.New()
	boom := assert.AnError
	var (
		a *pulse.Source[bool]
		d *pulse.Derived[int]
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, false)
		d = newDerived(t, rt, func(int) (int, error) {
			if a.Value() {
				return 0, boom
			}
			return 1, nil
		})
		return nil, nil
	})
	_, err := d.Value()
	require.NoError(t, err)

	require.NoError(t, a.Set(true))
	_, err = d.Value()
	assert.ErrorIs(t, err, boom)
}

// an effect dropped by a failed compute must wake up again once the
// upstream value changes to one that computes cleanly
func TestEffectRecoversAfterComputeError(t *testing.T) {
	rt := pulse.New()
	boom := assert.AnError
	var (
		a    *pulse.Source[int]
		seen []int
	)
	newRoot(t, rt, func() (pulse.Teardown, error) {
		a = pulse.NewSource(rt, 0)
		d := newDerived(t, rt, func(int) (int, error) {
			v := a.Value()
			if v == 1 {
				return 0, boom
			}
			return v * 10, nil
		})
		newEffect(t, rt, pulse.KindUser, func() (pulse.Teardown, error) {
			v, err := d.Value()
			if err != nil {
				return nil, err
			}
			seen = append(seen, v)
			return nil, nil
		})
		return nil, nil
	})
	require.Equal(t, []int{0}, seen)

	assert.ErrorIs(t, a.Set(1), boom)
	require.Equal(t, []int{0}, seen)

	require.NoError(t, a.Set(2))
	assert.Equal(t, []int{0, 20}, seen, "recovery write must re-run the effect")
}

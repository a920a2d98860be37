package pulse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsegraph/pulse"
)

func newRoot(t *testing.T, rt *pulse.Runtime, fn pulse.EffectFunc) *pulse.Effect {
	t.Helper()
	root, err := pulse.NewRoot(rt, fn)
	require.NoError(t, err)
	return root
}

func newDerived[T any](t *testing.T, rt *pulse.Runtime, fn func(T) (T, error)) *pulse.Derived[T] {
	t.Helper()
	d, err := pulse.NewDerived(rt, fn)
	require.NoError(t, err)
	return d
}

func newEffect(t *testing.T, rt *pulse.Runtime, kind pulse.EffectKind, fn pulse.EffectFunc, opts ...pulse.EffectOption) *pulse.Effect {
	t.Helper()
	e, err := pulse.NewEffect(rt, kind, fn, opts...)
	require.NoError(t, err)
	return e
}

func read[T any](t *testing.T, d *pulse.Derived[T]) T {
	t.Helper()
	v, err := d.Value()
	require.NoError(t, err)
	return v
}

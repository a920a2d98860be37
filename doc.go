// Package pulse is a fine-grained reactive runtime: a dependency-tracking
// graph of sources, derived computations and effects, plus a scheduler that
// decides when and in what order reactions re-run after state mutates.
//
// Sources push staleness to their subscribers on write; deriveds pull
// lazily, recomputing only when a recorded dependency's version actually
// moved, which collapses diamond-shaped graphs into a single recompute.
// Effects own every node created during their run and rebuild that subtree
// wholesale on each re-run. Pause and Resume defer a subtree's teardown
// until its exit transitions complete, so animated removal can still be
// cancelled.
//
// A Runtime is single-threaded and self-contained; independent graphs get
// independent runtimes.
package pulse

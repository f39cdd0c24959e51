// Package process combines the exploratory and dynamic phases' raw outputs
// into one statistically valid nested sampling run, removing the samples
// the two phases share and re-verifying every structural invariant before
// the result is released.
package process

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// ErrMergeInconsistent wraps every fatal merge check: shared-prefix
// mismatches, live-at-resume points found zero or multiple times, and any
// validator failure on the combined run. A merge that trips one of these
// is aborted rather than allowed to produce a silently wrong run.
var ErrMergeInconsistent = errors.New("merge inconsistency")

// CombineResumed merges an exploratory run with a dynamic run that was
// resumed from a checkpoint taken resumeNDead dead points into the
// exploration. The two runs overlap in three ways, all removed here:
//
//   - the first resumeNDead samples appear in both files and must agree
//     exactly by log-likelihood; the exploratory copies are dropped;
//   - every exploratory thread still open at the resume point contributes
//     one more sample that the dynamic run also holds as an ordinary dead
//     point; that sample is dropped from the exploratory tail (after
//     verifying it occurs exactly once in the dynamic run) and the
//     thread's birth bound is corrected to its log-likelihood;
//   - threads left empty by the dropping are removed and the remaining
//     exploratory labels renumbered contiguously.
//
// The surviving exploratory threads are appended after the dynamic run's
// threads (offsetting their labels past the dynamic count) and recombined
// with a fresh live-point array and a birth-point consistency check.
//
// Inputs are not mutated; the compacted result is built from a cloned
// arena plus an explicit removal set, so every check runs before anything
// is committed.
func CombineResumed(initIn, dyn *nsrun.Run, resumeNDead int) (*nsrun.Run, error) {
	if resumeNDead <= 0 || resumeNDead > initIn.Len() || resumeNDead > dyn.Len() {
		return nil, fmt.Errorf("%w: resume count %d outside both runs (init %d, dyn %d samples)",
			ErrMergeInconsistent, resumeNDead, initIn.Len(), dyn.Len())
	}

	// Shared prefix must be byte-for-byte the same sequence of deaths.
	for i := 0; i < resumeNDead; i++ {
		if initIn.LogL[i] != dyn.LogL[i] {
			return nil, fmt.Errorf("%w: shared prefix diverges at sample %d (init logl %v, dyn logl %v)",
				ErrMergeInconsistent, i, initIn.LogL[i], dyn.LogL[i])
		}
	}

	init := initIn.Clone()
	init.Theta = init.Theta[resumeNDead:]
	init.LogL = init.LogL[resumeNDead:]
	init.NLive = init.NLive[resumeNDead:]
	init.ThreadLabels = init.ThreadLabels[resumeNDead:]

	// Index the exploratory tail per thread label.
	byLabel := make(map[int][]int)
	for i, lab := range init.ThreadLabels {
		byLabel[lab] = append(byLabel[lab], i)
	}
	labels := make([]int, 0, len(byLabel))
	for lab := range byLabel {
		labels = append(labels, lab)
	}
	sort.Ints(labels)

	// Mark each thread's live-at-resume point for removal and correct the
	// thread's birth bound to that point's log-likelihood.
	remove := make(map[int]bool, len(labels))
	empty := make(map[int]bool)
	for _, lab := range labels {
		inds := byLabel[lab]
		liveLogL := init.LogL[inds[0]]
		if n := dyn.CountLogL(liveLogL); n != 1 {
			return nil, fmt.Errorf("%w: live-at-resume point of thread %d (logl %v) found %d times in dynamic run, want exactly 1",
				ErrMergeInconsistent, lab, liveLogL, n)
		}
		remove[inds[0]] = true
		if len(inds) == 1 {
			empty[lab] = true
		}
		init.ThreadMinMax[lab][0] = liveLogL
	}

	// Threads with no samples in the tail at all lose their bound entry
	// alongside the ones emptied by the removal above.
	for lab := range init.ThreadMinMax {
		if _, ok := byLabel[lab]; !ok {
			empty[lab] = true
		}
	}

	// Compact the arena, skipping removed samples, and renumber surviving
	// thread labels contiguously with no gaps.
	newLabel := make(map[int]int, len(labels))
	var minmax [][2]float64
	for lab := range init.ThreadMinMax {
		if empty[lab] {
			continue
		}
		newLabel[lab] = len(minmax)
		minmax = append(minmax, init.ThreadMinMax[lab])
	}
	if len(minmax) == 0 {
		return nil, fmt.Errorf("%w: no exploratory samples survive deduplication", ErrMergeInconsistent)
	}

	tail := &nsrun.Run{ThreadMinMax: minmax}
	for i := range init.LogL {
		if remove[i] {
			continue
		}
		lab, ok := newLabel[init.ThreadLabels[i]]
		if !ok {
			return nil, fmt.Errorf("%w: sample %d belongs to removed thread %d",
				ErrMergeInconsistent, i, init.ThreadLabels[i])
		}
		tail.Theta = append(tail.Theta, init.Theta[i])
		tail.LogL = append(tail.LogL, init.LogL[i])
		tail.NLive = append(tail.NLive, init.NLive[i])
		tail.ThreadLabels = append(tail.ThreadLabels, lab)
	}

	// Renumbered bounds must still bracket each thread's remaining samples.
	if err := verifyThreadBounds(tail); err != nil {
		return nil, err
	}

	// Dynamic threads first, exploratory threads after: the combine
	// relabels in order, which offsets every exploratory label by the
	// dynamic run's thread count.
	dynThreads, err := dyn.Threads()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeInconsistent, err)
	}
	tailThreads, err := tail.Threads()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeInconsistent, err)
	}
	run, err := nsrun.CombineThreads(append(dynThreads, tailThreads...), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeInconsistent, err)
	}

	if want := tail.Len() + dyn.Len(); run.Len() != want {
		return nil, fmt.Errorf("%w: merged run has %d samples, want tail %d + dynamic %d = %d",
			ErrMergeInconsistent, run.Len(), tail.Len(), dyn.Len(), want)
	}
	return run, nil
}

func verifyThreadBounds(tail *nsrun.Run) error {
	first := make(map[int]int)
	last := make(map[int]int)
	for i, lab := range tail.ThreadLabels {
		if _, ok := first[lab]; !ok {
			first[lab] = i
		}
		last[lab] = i
	}
	for lab := range tail.ThreadMinMax {
		fi, ok := first[lab]
		if !ok {
			return fmt.Errorf("%w: relabelled thread %d has no samples", ErrMergeInconsistent, lab)
		}
		mm := tail.ThreadMinMax[lab]
		if !math.IsInf(mm[0], -1) && mm[0] > tail.LogL[fi] {
			return fmt.Errorf("%w: thread %d birth bound %v exceeds first remaining sample logl %v",
				ErrMergeInconsistent, lab, mm[0], tail.LogL[fi])
		}
		if mm[1] != tail.LogL[last[lab]] {
			return fmt.Errorf("%w: thread %d death bound %v does not match last remaining sample logl %v",
				ErrMergeInconsistent, lab, mm[1], tail.LogL[last[lab]])
		}
	}
	return nil
}

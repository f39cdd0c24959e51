package nsrun

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvariant is wrapped by every CheckRun failure. A run that fails any
// structural invariant must not be used for downstream estimates.
var ErrInvariant = errors.New("run invariant violated")

// CheckRun verifies the structural invariants of a run:
//
//   - all sample arrays have the same length;
//   - log-likelihoods are sorted in non-decreasing order;
//   - thread labels form the contiguous range 0..T-1 with no gaps;
//   - each thread's death bound equals the log-likelihood of its last
//     sample and its birth bound does not exceed its first sample's;
//   - each birth bound is BirthAtStart or matches some sample's
//     log-likelihood exactly;
//   - the stored live-point array matches a fresh recount of thread
//     coverage at every index.
//
// The returned error names the violated invariant and the offending
// sample index or thread label.
func CheckRun(r *Run) error {
	n := r.Len()
	if len(r.Theta) != n || len(r.NLive) != n || len(r.ThreadLabels) != n {
		return fmt.Errorf("%w: array lengths differ (theta=%d logl=%d nlive=%d labels=%d)",
			ErrInvariant, len(r.Theta), n, len(r.NLive), len(r.ThreadLabels))
	}
	if n == 0 {
		return fmt.Errorf("%w: run has no samples", ErrInvariant)
	}

	for i := 1; i < n; i++ {
		if r.LogL[i] < r.LogL[i-1] {
			return fmt.Errorf("%w: logl not sorted at sample %d (%v < %v)",
				ErrInvariant, i, r.LogL[i], r.LogL[i-1])
		}
	}

	numThreads := r.NumThreads()
	first := make([]int, numThreads)
	last := make([]int, numThreads)
	seen := make([]bool, numThreads)
	for i, lab := range r.ThreadLabels {
		if lab < 0 || lab >= numThreads {
			return fmt.Errorf("%w: sample %d has thread label %d outside contiguous range [0,%d)",
				ErrInvariant, i, lab, numThreads)
		}
		if !seen[lab] {
			seen[lab] = true
			first[lab] = i
		}
		last[lab] = i
	}
	for lab, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: thread label %d has no samples (labels not contiguous)",
				ErrInvariant, lab)
		}
	}

	for lab := 0; lab < numThreads; lab++ {
		mm := r.ThreadMinMax[lab]
		if mm[1] != r.LogL[last[lab]] {
			return fmt.Errorf("%w: thread %d death bound %v does not equal its last sample logl %v",
				ErrInvariant, lab, mm[1], r.LogL[last[lab]])
		}
		if !math.IsInf(mm[0], -1) {
			if mm[0] > r.LogL[first[lab]] {
				return fmt.Errorf("%w: thread %d birth bound %v exceeds its first sample logl %v",
					ErrInvariant, lab, mm[0], r.LogL[first[lab]])
			}
			if !containsLogL(r.LogL, mm[0]) {
				return fmt.Errorf("%w: thread %d birth bound %v matches no sample logl",
					ErrInvariant, lab, mm[0])
			}
		}
	}

	recount := nliveFromBounds(r.LogL, r.ThreadMinMax)
	for i := range recount {
		if recount[i] != r.NLive[i] {
			return fmt.Errorf("%w: nlive mismatch at sample %d (stored %d, thread coverage %d)",
				ErrInvariant, i, r.NLive[i], recount[i])
		}
		if r.NLive[i] <= 0 {
			return fmt.Errorf("%w: nonpositive nlive %d at sample %d", ErrInvariant, r.NLive[i], i)
		}
	}
	return nil
}

// Package nsrun defines the in-memory representation of a nested sampling
// run and the operations on its thread structure: extracting single-walker
// threads, combining threads into a run, and recomputing the live-point
// count array from thread birth/death bounds.
package nsrun

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// BirthAtStart marks a thread that was live from the very beginning of a
// run, i.e. its birth bound is below every sampled log-likelihood.
var BirthAtStart = math.Inf(-1)

// Info carries the evaluation counters reported by the sampling engine for
// the samples in a run. Counters are summed when runs are combined.
type Info struct {
	NLike int64 // cumulative likelihood evaluations
	NDead int   // dead points reported by the engine
}

// Run is a nested sampling run stored as parallel arrays ordered by
// increasing log-likelihood. ThreadLabels[i] names the walker thread that
// produced sample i; ThreadMinMax[t] holds thread t's birth and death
// log-likelihood bounds. NLive[i] is the number of threads whose bound
// interval covers sample i.
type Run struct {
	Theta        [][]float64
	LogL         []float64
	NLive        []int
	ThreadLabels []int
	ThreadMinMax [][2]float64
	Info         Info
}

// ErrMalformedRun reports structurally invalid input (mismatched array
// lengths, unknown thread labels) as opposed to a violated sampling
// invariant.
var ErrMalformedRun = errors.New("malformed run")

// Len returns the number of samples in the run.
func (r *Run) Len() int { return len(r.LogL) }

// NumThreads returns the number of threads in the run.
func (r *Run) NumThreads() int { return len(r.ThreadMinMax) }

// Clone returns a deep copy of the run. Merging mutates thread bounds and
// sample arrays, so callers that need the original intact clone first.
func (r *Run) Clone() *Run {
	c := &Run{
		Theta:        make([][]float64, len(r.Theta)),
		LogL:         append([]float64(nil), r.LogL...),
		NLive:        append([]int(nil), r.NLive...),
		ThreadLabels: append([]int(nil), r.ThreadLabels...),
		ThreadMinMax: append([][2]float64(nil), r.ThreadMinMax...),
		Info:         r.Info,
	}
	for i, th := range r.Theta {
		c.Theta[i] = append([]float64(nil), th...)
	}
	return c
}

// Threads splits the run into single-thread runs, one per thread label in
// ascending label order. Each returned run keeps its original label.
func (r *Run) Threads() ([]*Run, error) {
	byLabel := make(map[int][]int, r.NumThreads())
	for i, lab := range r.ThreadLabels {
		if lab < 0 || lab >= r.NumThreads() {
			return nil, fmt.Errorf("%w: sample %d has thread label %d outside [0,%d)",
				ErrMalformedRun, i, lab, r.NumThreads())
		}
		byLabel[lab] = append(byLabel[lab], i)
	}
	threads := make([]*Run, 0, len(byLabel))
	labels := make([]int, 0, len(byLabel))
	for lab := range byLabel {
		labels = append(labels, lab)
	}
	sort.Ints(labels)
	for _, lab := range labels {
		inds := byLabel[lab]
		th := &Run{
			Theta:        make([][]float64, len(inds)),
			LogL:         make([]float64, len(inds)),
			NLive:        make([]int, len(inds)),
			ThreadLabels: make([]int, len(inds)),
			ThreadMinMax: [][2]float64{r.ThreadMinMax[lab]},
		}
		for j, i := range inds {
			th.Theta[j] = r.Theta[i]
			th.LogL[j] = r.LogL[i]
			th.NLive[j] = 1
			th.ThreadLabels[j] = lab
		}
		threads = append(threads, th)
	}
	return threads, nil
}

// CombineThreads merges single-thread runs into one run. Threads are
// relabelled 0..T-1 in input order, samples are sorted by log-likelihood,
// and the live-point array is rederived from the thread bounds. With
// assertBirth set, every thread's birth bound must be BirthAtStart or equal
// to the log-likelihood of some sample in the merged run (a thread is born
// where another point died).
func CombineThreads(threads []*Run, assertBirth bool) (*Run, error) {
	if len(threads) == 0 {
		return nil, fmt.Errorf("%w: no threads to combine", ErrMalformedRun)
	}
	total := 0
	for _, th := range threads {
		if len(th.ThreadMinMax) != 1 {
			return nil, fmt.Errorf("%w: thread run must hold exactly one bound pair, got %d",
				ErrMalformedRun, len(th.ThreadMinMax))
		}
		total += th.Len()
	}

	out := &Run{
		Theta:        make([][]float64, 0, total),
		LogL:         make([]float64, 0, total),
		ThreadLabels: make([]int, 0, total),
		ThreadMinMax: make([][2]float64, len(threads)),
	}
	for newLab, th := range threads {
		out.ThreadMinMax[newLab] = th.ThreadMinMax[0]
		for i := range th.LogL {
			out.Theta = append(out.Theta, th.Theta[i])
			out.LogL = append(out.LogL, th.LogL[i])
			out.ThreadLabels = append(out.ThreadLabels, newLab)
		}
	}
	out.sortByLogL()
	out.NLive = nliveFromBounds(out.LogL, out.ThreadMinMax)

	if assertBirth {
		for t, mm := range out.ThreadMinMax {
			if math.IsInf(mm[0], -1) {
				continue
			}
			if !containsLogL(out.LogL, mm[0]) {
				return nil, fmt.Errorf("%w: thread %d birth bound %v matches no sample in merged run",
					ErrMalformedRun, t, mm[0])
			}
		}
	}
	return out, nil
}

// CombineRuns merges independent runs with disjoint sample sets: thread
// collections are concatenated (relabelling to avoid collisions), the
// live-point array is recomputed, and evaluation counters are summed.
func CombineRuns(runs ...*Run) (*Run, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs to combine", ErrMalformedRun)
	}
	var all []*Run
	var info Info
	for _, r := range runs {
		threads, err := r.Threads()
		if err != nil {
			return nil, err
		}
		all = append(all, threads...)
		info.NLike += r.Info.NLike
		info.NDead += r.Info.NDead
	}
	out, err := CombineThreads(all, false)
	if err != nil {
		return nil, err
	}
	out.Info = info
	return out, nil
}

// sortByLogL orders all sample arrays by non-decreasing log-likelihood,
// keeping the relative order of equal values.
func (r *Run) sortByLogL() {
	perm := make([]int, r.Len())
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return r.LogL[perm[a]] < r.LogL[perm[b]] })

	theta := make([][]float64, len(perm))
	logl := make([]float64, len(perm))
	labels := make([]int, len(perm))
	for to, from := range perm {
		theta[to] = r.Theta[from]
		logl[to] = r.LogL[from]
		labels[to] = r.ThreadLabels[from]
	}
	r.Theta, r.LogL, r.ThreadLabels = theta, logl, labels
	if r.NLive != nil {
		r.NLive = nliveFromBounds(r.LogL, r.ThreadMinMax)
	}
}

// nliveFromBounds counts, for each sample, the threads whose (birth, death]
// interval covers that sample's log-likelihood. logl must be sorted.
func nliveFromBounds(logl []float64, minmax [][2]float64) []int {
	n := len(logl)
	delta := make([]int, n+1)
	for _, mm := range minmax {
		start := 0
		if !math.IsInf(mm[0], -1) {
			// First sample strictly above the birth contour.
			start = sort.SearchFloat64s(logl, math.Nextafter(mm[0], math.Inf(1)))
		}
		// One past the last sample at or below the death contour.
		end := sort.SearchFloat64s(logl, math.Nextafter(mm[1], math.Inf(1)))
		if start < end {
			delta[start]++
			delta[end]--
		}
	}
	nlive := make([]int, n)
	running := 0
	for i := 0; i < n; i++ {
		running += delta[i]
		nlive[i] = running
	}
	return nlive
}

// containsLogL reports whether the sorted slice holds an exact match.
func containsLogL(logl []float64, v float64) bool {
	i := sort.SearchFloat64s(logl, v)
	return i < len(logl) && logl[i] == v
}

// CountLogL returns the number of samples with log-likelihood exactly v.
func (r *Run) CountLogL(v float64) int {
	lo := sort.SearchFloat64s(r.LogL, v)
	n := 0
	for i := lo; i < len(r.LogL) && r.LogL[i] == v; i++ {
		n++
	}
	return n
}

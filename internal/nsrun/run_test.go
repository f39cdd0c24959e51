package nsrun

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoThreadRun builds a run with two threads live from the start:
// thread 0 contributes logl 1,3,5 and thread 1 contributes logl 2,4.
func twoThreadRun(t *testing.T) *Run {
	t.Helper()
	threads := []*Run{
		{
			Theta:        [][]float64{{0.1}, {0.3}, {0.5}},
			LogL:         []float64{1, 3, 5},
			NLive:        []int{1, 1, 1},
			ThreadLabels: []int{0, 0, 0},
			ThreadMinMax: [][2]float64{{BirthAtStart, 5}},
		},
		{
			Theta:        [][]float64{{0.2}, {0.4}},
			LogL:         []float64{2, 4},
			NLive:        []int{1, 1},
			ThreadLabels: []int{1, 1},
			ThreadMinMax: [][2]float64{{BirthAtStart, 4}},
		},
	}
	run, err := CombineThreads(threads, true)
	require.NoError(t, err)
	return run
}

func TestCombineThreads_SortsAndCounts(t *testing.T) {
	run := twoThreadRun(t)

	require.Equal(t, []float64{1, 2, 3, 4, 5}, run.LogL)
	require.Equal(t, []int{0, 1, 0, 1, 0}, run.ThreadLabels)
	require.Equal(t, []int{2, 2, 2, 2, 1}, run.NLive)
	require.NoError(t, CheckRun(run))
}

func TestCombineThreads_MidRunBirth(t *testing.T) {
	run := twoThreadRun(t)
	threads, err := run.Threads()
	require.NoError(t, err)

	// A third thread born at the death contour of the logl=2 sample.
	threads = append(threads, &Run{
		Theta:        [][]float64{{0.35}, {0.45}},
		LogL:         []float64{3.5, 4.5},
		NLive:        []int{1, 1},
		ThreadLabels: []int{2, 2},
		ThreadMinMax: [][2]float64{{2, 4.5}},
	})
	merged, err := CombineThreads(threads, true)
	require.NoError(t, err)

	require.Equal(t, []float64{1, 2, 3, 3.5, 4, 4.5, 5}, merged.LogL)
	require.Equal(t, []int{2, 2, 3, 3, 3, 2, 1}, merged.NLive)
	require.NoError(t, CheckRun(merged))
}

func TestCombineThreads_BirthPointMissing(t *testing.T) {
	threads := []*Run{
		{
			Theta:        [][]float64{{0.1}},
			LogL:         []float64{1},
			NLive:        []int{1},
			ThreadLabels: []int{0},
			ThreadMinMax: [][2]float64{{BirthAtStart, 1}},
		},
		{
			Theta:        [][]float64{{0.2}},
			LogL:         []float64{2},
			NLive:        []int{1},
			ThreadLabels: []int{1},
			// Born at logl 0.5, which no sample in the merged set has.
			ThreadMinMax: [][2]float64{{0.5, 2}},
		},
	}
	_, err := CombineThreads(threads, true)
	assert.ErrorIs(t, err, ErrMalformedRun)

	// Without the birth assertion the combine succeeds.
	_, err = CombineThreads(threads, false)
	assert.NoError(t, err)
}

func TestCombineRuns_Disjoint(t *testing.T) {
	a := twoThreadRun(t)
	a.Info = Info{NLike: 100, NDead: 5}

	b, err := CombineThreads([]*Run{
		{
			Theta:        [][]float64{{1.1}, {1.2}},
			LogL:         []float64{10, 20},
			NLive:        []int{1, 1},
			ThreadLabels: []int{0, 0},
			ThreadMinMax: [][2]float64{{BirthAtStart, 20}},
		},
	}, true)
	require.NoError(t, err)
	b.Info = Info{NLike: 40, NDead: 2}

	merged, err := CombineRuns(a, b)
	require.NoError(t, err)

	require.Equal(t, a.Len()+b.Len(), merged.Len())
	require.Equal(t, int64(140), merged.Info.NLike)
	require.Equal(t, 7, merged.Info.NDead)
	require.NoError(t, CheckRun(merged))

	// nlive must be derivable from the merged thread bounds alone.
	require.Equal(t, nliveFromBounds(merged.LogL, merged.ThreadMinMax), merged.NLive)
}

func TestThreads_RoundTrip(t *testing.T) {
	run := twoThreadRun(t)
	threads, err := run.Threads()
	require.NoError(t, err)
	require.Len(t, threads, 2)

	rebuilt, err := CombineThreads(threads, true)
	require.NoError(t, err)
	if diff := cmp.Diff(run.LogL, rebuilt.LogL); diff != "" {
		t.Errorf("logl mismatch after round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(run.NLive, rebuilt.NLive); diff != "" {
		t.Errorf("nlive mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestClone_Independent(t *testing.T) {
	run := twoThreadRun(t)
	c := run.Clone()
	c.LogL[0] = -99
	c.ThreadMinMax[0][1] = -99
	c.Theta[0][0] = -99

	assert.Equal(t, 1.0, run.LogL[0])
	assert.Equal(t, 5.0, run.ThreadMinMax[0][1])
	assert.Equal(t, 0.1, run.Theta[0][0])
}

func TestCheckRun_Violations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Run)
	}{
		{"unsorted logl", func(r *Run) { r.LogL[0], r.LogL[1] = r.LogL[1], r.LogL[0] }},
		{"label gap", func(r *Run) {
			for i, lab := range r.ThreadLabels {
				if lab == 1 {
					r.ThreadLabels[i] = 0
				}
			}
		}},
		{"death bound mismatch", func(r *Run) { r.ThreadMinMax[0][1] = 4.5 }},
		{"dangling birth bound", func(r *Run) { r.ThreadMinMax[1][0] = 0.5 }},
		{"nlive mismatch", func(r *Run) { r.NLive[2]++ }},
		{"length mismatch", func(r *Run) { r.NLive = r.NLive[:r.Len()-1] }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := twoThreadRun(t)
			tc.mutate(run)
			assert.ErrorIs(t, CheckRun(run), ErrInvariant)
		})
	}
}

func TestCheckRun_AcceptsCorrectedBirthBound(t *testing.T) {
	run := twoThreadRun(t)
	// Thread 1 reborn at the logl=1 contour, as the resumed merge does
	// when it drops a live-at-resume point.
	run.ThreadMinMax[1][0] = 1
	run.NLive = nliveFromBounds(run.LogL, run.ThreadMinMax)
	require.NoError(t, CheckRun(run))
}

func TestLogX(t *testing.T) {
	logx, err := LogX([]int{2, 2, 1})
	require.NoError(t, err)
	want := []float64{-0.5, -1.0, -2.0}
	for i := range want {
		assert.InDelta(t, want[i], logx[i], 1e-12)
	}

	_, err = LogX([]int{2, 0})
	assert.Error(t, err)
}

func TestRelPosteriorMass_SumsToOne(t *testing.T) {
	run := twoThreadRun(t)
	logx, err := LogX(run.NLive)
	require.NoError(t, err)
	w, err := RelPosteriorMass(logx, run.LogL)
	require.NoError(t, err)

	sum := 0.0
	for _, wi := range w {
		require.GreaterOrEqual(t, wi, 0.0)
		sum += wi
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestLogZ_Finite(t *testing.T) {
	run := twoThreadRun(t)
	logz, err := run.LogZ()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(logz))
	assert.False(t, math.IsInf(logz, 0))
}

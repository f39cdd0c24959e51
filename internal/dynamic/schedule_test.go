package dynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// initRunFixture is a finished exploratory run with ninit=2 threads:
// thread 0 holds logl 1,3,5,7 and thread 1 holds logl 2,4,6,8.
func initRunFixture(t *testing.T) *nsrun.Run {
	t.Helper()
	run := &nsrun.Run{
		Theta: [][]float64{
			{0.1}, {0.2}, {0.3}, {0.4}, {0.5}, {0.6}, {0.7}, {0.8},
		},
		LogL:         []float64{1, 2, 3, 4, 5, 6, 7, 8},
		NLive:        []int{2, 2, 2, 2, 2, 2, 2, 1},
		ThreadLabels: []int{0, 1, 0, 1, 0, 1, 0, 1},
		ThreadMinMax: [][2]float64{{nsrun.BirthAtStart, 7}, {nsrun.BirthAtStart, 8}},
	}
	require.NoError(t, nsrun.CheckRun(run))
	return run
}

func TestCalculateSchedule_BudgetScaling(t *testing.T) {
	run := initRunFixture(t)
	alloc, err := CalculateSchedule(run, ScheduleConfig{NInit: 2, MaxNDead: 20, Stride: 2})
	require.NoError(t, err)

	// With a budget of 20 the weight mass first exceeds ninit at index 5.
	assert.Equal(t, 5, alloc.PeakOnset)

	// Monotonic floor: every index before the peak is exactly ninit.
	for i := 0; i < alloc.PeakOnset; i++ {
		assert.Equal(t, 2.0, alloc.Target[i], "target before peak at index %d", i)
	}

	// Non-negativity: every emitted entry has at least one live point.
	for _, e := range alloc.Schedule {
		assert.GreaterOrEqual(t, e.NLive, 1)
	}

	// Seed entry far below any real sample maps to ninit.
	n, ok := alloc.Schedule.At(ScheduleFloorLogL)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	// Look-ahead assignment: the entry keyed at logl[step] carries the
	// target from one stride ahead, so counts rise before they are needed.
	n, ok = alloc.Schedule.At(run.LogL[4])
	require.True(t, ok)
	assert.Equal(t, int(alloc.Target[6]), n)
	assert.Equal(t, 3, n)

	_, ok = alloc.Schedule.At(2 * ScheduleFloorLogL)
	assert.False(t, ok, "nothing may be scheduled below the seed entry")
}

func TestCalculateSchedule_ConstScaling(t *testing.T) {
	run := initRunFixture(t)
	// No explicit budget: scale by n * (nlive_const - ninit) / ninit.
	alloc, err := CalculateSchedule(run, ScheduleConfig{NInit: 2, NLiveConst: 100, Stride: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, alloc.PeakOnset, "a generous constant concentrates mass from the start")
	for _, e := range alloc.Schedule {
		assert.GreaterOrEqual(t, e.NLive, 1)
	}
}

func TestCalculateSchedule_InfeasiblePeak(t *testing.T) {
	run := initRunFixture(t)
	// Budget barely above the exploratory dead count: the scaled weights
	// never exceed ninit, which must fail loudly rather than default.
	_, err := CalculateSchedule(run, ScheduleConfig{NInit: 2, MaxNDead: 9, Stride: 1})
	require.ErrorIs(t, err, ErrScheduleInfeasible)
}

func TestCalculateSchedule_RejectsBadConfig(t *testing.T) {
	run := initRunFixture(t)
	_, err := CalculateSchedule(run, ScheduleConfig{NInit: 2, MaxNDead: 20, Stride: 0})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = CalculateSchedule(run, ScheduleConfig{NInit: 0, MaxNDead: 20, Stride: 1})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = CalculateSchedule(&nsrun.Run{}, ScheduleConfig{NInit: 2, MaxNDead: 20, Stride: 1})
	assert.ErrorIs(t, err, ErrConfig)
}

package dynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkpoints(ndead ...int) []Checkpoint {
	out := make([]Checkpoint, len(ndead))
	for i, nd := range ndead {
		out[i] = Checkpoint{NDead: nd}
	}
	return out
}

func TestSelectResume_PicksLatestBeforePeak(t *testing.T) {
	history := checkpoints(10, 20, 30, 40)

	// The selected dead count is the maximum satisfying ndead-1 < peak.
	cases := []struct {
		peak int
		want int
	}{
		{peak: 25, want: 20},
		{peak: 30, want: 30},
		{peak: 10, want: 10},
		{peak: 1000, want: 40},
	}
	for _, tc := range cases {
		cp, err := SelectResume(history, tc.peak)
		require.NoError(t, err, "peak %d", tc.peak)
		assert.Equal(t, tc.want, cp.NDead, "peak %d", tc.peak)
		assert.Less(t, cp.NDead-1, tc.peak)
	}
}

func TestSelectResume_NoQualifyingCheckpoint(t *testing.T) {
	_, err := SelectResume(checkpoints(10, 20), 5)
	require.ErrorIs(t, err, ErrNoResumePoint)

	_, err = SelectResume(nil, 100)
	require.ErrorIs(t, err, ErrNoResumePoint)
}

package dynamic

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunRepeats_AllComplete(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	err := RunRepeats(context.Background(), 8, 3, func(_ context.Context, rep int) error {
		mu.Lock()
		defer mu.Unlock()
		seen[rep] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 8)
}

func TestRunRepeats_FirstErrorWins(t *testing.T) {
	boom := errors.New("repetition failed")
	err := RunRepeats(context.Background(), 4, 1, func(_ context.Context, rep int) error {
		if rep == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunRepeats_Zero(t *testing.T) {
	calls := 0
	err := RunRepeats(context.Background(), 0, 0, func(context.Context, int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

package dynamic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fagan2888/dyPolyChord/internal/engine"
)

var initDeadBirth = []string{
	"0.1 1 -1e+30",
	"0.2 2 -1e+30",
	"0.3 3 1",
	"0.4 4 2",
	"0.5 5 3",
	"0.6 6 4",
	"0.7 7 5",
	"0.8 8 6",
}

// pipelineEngine emulates the sampler's file side effects: a resume file
// tagged with the call index when checkpointing is on, and a dead-birth
// sample log for whatever file root it was invoked with.
type pipelineEngine struct {
	outs  []engine.Output
	calls []engine.Settings
}

func (e *pipelineEngine) Run(_ context.Context, s engine.Settings) (engine.Output, error) {
	idx := len(e.calls)
	e.calls = append(e.calls, s)
	if s.WriteResume {
		if err := os.WriteFile(s.ResumePath(), []byte(fmt.Sprintf("ckpt-%d", idx)), 0644); err != nil {
			return engine.Output{}, err
		}
	}
	lines := strings.Join(initDeadBirth, "\n") + "\n"
	if err := os.WriteFile(s.DeadBirthPath(), []byte(lines), 0644); err != nil {
		return engine.Output{}, err
	}
	return e.outs[idx], nil
}

func newPipeline(t *testing.T, eng engine.Engine) *Pipeline {
	t.Helper()
	return &Pipeline{Engine: eng, Loader: engine.FileLoader{}, Logger: zaptest.NewLogger(t)}
}

func TestPipeline_ResumedDynamicRun(t *testing.T) {
	dir := t.TempDir()
	eng := &pipelineEngine{outs: []engine.Output{
		{NDead: 7, NLike: 100},  // history 5: cap reached
		{NDead: 8, NLike: 200},  // history 6 == 5+1: natural termination
		{NDead: 30, NLike: 3000}, // dynamic phase
	}}
	p := newPipeline(t, eng)

	base := engine.Settings{BaseDir: dir, FileRoot: "toy"}
	cfg := Config{Goal: 1, NInit: 2, InitStep: 5, Stride: 2, MaxNDead: 20}

	res, err := p.Run(context.Background(), base, cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.True(t, res.Resumed)
	assert.Equal(t, 5, res.ResumeNDead)
	assert.Equal(t, int64(100), res.ResumeNLike)
	assert.Equal(t, int64(200), res.InitNLike)
	assert.Equal(t, int64(3000), res.DynNLike)
	assert.Equal(t, 30, res.DynNDead)
	assert.Equal(t, 5, res.PeakOnset)
	assert.Equal(t, "toy_init", res.InitRoot())
	assert.Equal(t, "toy_dyn", res.DynRoot())

	// Dynamic settings were built fresh: schedule, stride nlive, resume.
	require.Len(t, eng.calls, 3)
	dyn := eng.calls[2]
	assert.Equal(t, "toy_dyn", dyn.FileRoot)
	assert.True(t, dyn.ReadResume)
	assert.Equal(t, cfg.Stride, dyn.NLive)
	assert.Equal(t, cfg.MaxNDead, dyn.MaxNDead)
	assert.NotEmpty(t, dyn.NLives)

	// The dynamic phase resumed from the checkpoint taken at dead count 5,
	// which the first sub-run wrote.
	data, err := os.ReadFile(dyn.ResumePath())
	require.NoError(t, err)
	assert.Equal(t, "ckpt-0", string(data))

	// Retained exploration checkpoints are gone after the run.
	for _, nd := range []int{5, 6} {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("toy_init_%d.resume", nd)))
		assert.True(t, os.IsNotExist(err), "checkpoint at %d must be deleted", nd)
	}
}

func TestPipeline_IndependentDynamicRun(t *testing.T) {
	dir := t.TempDir()
	eng := &pipelineEngine{outs: []engine.Output{
		{NDead: 7, NLike: 100},
		{NDead: 8, NLike: 200},
		{NDead: 25, NLike: 2500},
	}}
	p := newPipeline(t, eng)

	base := engine.Settings{BaseDir: dir, FileRoot: "toy0"}
	res, err := p.Run(context.Background(), base, Config{Goal: 0, NInit: 2, InitStep: 5, Stride: 2, MaxNDead: 20})
	require.NoError(t, err)

	assert.False(t, res.Resumed)
	assert.Zero(t, res.ResumeNDead)
	dyn := eng.calls[2]
	assert.False(t, dyn.ReadResume, "goal 0 starts the dynamic phase fresh")
	assert.NotEmpty(t, dyn.NLives, "the schedule is still derived and applied")
}

func TestPipeline_RejectsContradictorySettings(t *testing.T) {
	p := newPipeline(t, &pipelineEngine{})
	cfg := Config{Goal: 1, NInit: 2, InitStep: 5, Stride: 2, MaxNDead: 20}

	resumed := engine.Settings{BaseDir: t.TempDir(), FileRoot: "x", ReadResume: true}
	_, err := p.Run(context.Background(), resumed, cfg)
	assert.ErrorIs(t, err, ErrConfig)

	preset := engine.Settings{BaseDir: t.TempDir(), FileRoot: "x"}
	preset.NLives = engine.Schedule{{LogL: 0, NLive: 10}}
	_, err = p.Run(context.Background(), preset, cfg)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = p.RunStandard(context.Background(), resumed)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestPipeline_RunStandard(t *testing.T) {
	dir := t.TempDir()
	eng := &pipelineEngine{outs: []engine.Output{{NDead: 8, NLike: 800}}}
	p := newPipeline(t, eng)

	run, err := p.RunStandard(context.Background(), engine.Settings{BaseDir: dir, FileRoot: "std", NLive: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, run.Len())
	assert.Equal(t, int64(800), run.Info.NLike)
}

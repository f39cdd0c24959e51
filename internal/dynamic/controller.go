// Package dynamic drives dynamic nested sampling: a short checkpointed
// exploratory phase with few live points, a live-point allocation derived
// from the exploratory importance weights, and a resumed (or fresh)
// dynamic phase that spends the remaining budget where the posterior mass
// concentrates.
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fagan2888/dyPolyChord/internal/engine"
)

var (
	// ErrConfig reports contradictory caller settings, surfaced before
	// any engine invocation.
	ErrConfig = errors.New("configuration error")

	// ErrScheduleInfeasible reports that the exploratory weights never
	// exceed ninit, so no peak-onset index exists.
	ErrScheduleInfeasible = errors.New("schedule infeasible")

	// ErrNoResumePoint reports that no retained checkpoint precedes the
	// peak-onset index.
	ErrNoResumePoint = errors.New("no checkpoint qualifies for resume")
)

// ExploreConfig tunes the exploratory phase.
type ExploreConfig struct {
	NInit         int // live points held throughout exploration
	InitStep      int // dead-point cap increment per sub-run
	MaxIterations int // hard bound on sub-runs; 0 means DefaultMaxIterations
}

// DefaultMaxIterations bounds the exploration loop when the engine never
// reaches natural termination.
const DefaultMaxIterations = 1000

// Checkpoint is one retained engine snapshot, tagged with the cumulative
// dead-point count at which it was taken.
type Checkpoint struct {
	NDead int
	NLike int64
	Path  string
}

// Exploration is the completed exploratory phase: the settings of its
// final sub-run and the ordered, append-only checkpoint history.
type Exploration struct {
	Settings engine.Settings
	History  []Checkpoint
}

// DeadCounts returns the recorded dead-point history.
func (e *Exploration) DeadCounts() []int {
	out := make([]int, len(e.History))
	for i, cp := range e.History {
		out[i] = cp.NDead
	}
	return out
}

// Explore repeatedly invokes the engine with NInit live points, extending
// the dead-point cap by InitStep each sub-run and resuming from the
// previous checkpoint after the first. Each sub-run's checkpoint is copied
// aside, tagged with the dead count reached. The loop stops when the
// engine terminates on its own before the requested cap: the recorded
// dead count exceeds the previous one by exactly one.
//
// base carries the run identity (BaseDir, FileRoot, seed); per-iteration
// settings are constructed fresh and never mutated in place.
func Explore(ctx context.Context, eng engine.Engine, base engine.Settings, cfg ExploreConfig, logger *zap.Logger) (*Exploration, error) {
	if cfg.NInit <= 0 || cfg.InitStep <= 0 {
		return nil, fmt.Errorf("%w: ninit (%d) and init_step (%d) must be positive",
			ErrConfig, cfg.NInit, cfg.InitStep)
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	exp := &Exploration{}
	start := time.Now()
	for iter := 0; ; iter++ {
		if iter >= maxIter {
			return nil, fmt.Errorf("%w: exploration of %s did not terminate naturally within %d sub-runs",
				ErrConfig, base.FileRoot, maxIter)
		}

		s := base
		s.FileRoot = base.FileRoot + "_init"
		s.NLive = cfg.NInit
		s.NLives = nil
		s.MaxNDead = (iter + 1) * cfg.InitStep
		s.WriteResume = true
		s.ReadResume = iter > 0
		exp.Settings = s

		out, err := eng.Run(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("exploration sub-run %d (cap %d, checkpoint %s): %w",
				iter, s.MaxNDead, s.ResumePath(), err)
		}

		// The engine's ndead includes the NInit final live points written
		// out at termination; the history tracks true dead points.
		ndead := out.NDead - cfg.NInit
		if n := len(exp.History); n > 0 && ndead <= exp.History[n-1].NDead {
			// A stalled engine would alias tagged checkpoint paths; fail
			// now instead of looping to the iteration cap.
			return nil, fmt.Errorf("%w: exploration of %s stalled at %d dead points (sub-run %d reported %d)",
				ErrConfig, base.FileRoot, exp.History[n-1].NDead, iter, ndead)
		}
		tagged := s.TaggedResumePath(ndead)
		if err := engine.CopyCheckpoint(s.ResumePath(), tagged); err != nil {
			return nil, fmt.Errorf("exploration sub-run %d: %w", iter, err)
		}
		exp.History = append(exp.History, Checkpoint{NDead: ndead, NLike: out.NLike, Path: tagged})
		logger.Debug("exploration sub-run complete",
			zap.Int("iteration", iter),
			zap.Int("cap", s.MaxNDead),
			zap.Int("ndead", ndead))

		if n := len(exp.History); n >= 2 && exp.History[n-1].NDead == exp.History[n-2].NDead+1 {
			// Natural termination: the run exhausted itself one point
			// past the previous cap instead of being cut off.
			break
		}
	}
	logger.Info("exploration complete",
		zap.String("file_root", exp.Settings.FileRoot),
		zap.Int("sub_runs", len(exp.History)),
		zap.Ints("dead_counts", exp.DeadCounts()),
		zap.Duration("elapsed", time.Since(start)))
	return exp, nil
}

package process

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fagan2888/dyPolyChord/internal/dynamic"
	"github.com/fagan2888/dyPolyChord/internal/engine"
	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// DynamicRun loads the two phases of a completed dynamic run, merges them
// under the policy the run was produced with, and validates the result:
//
//   - a run whose dynamic phase started fresh (goal 0) has disjoint sample
//     sets, so the thread collections are simply concatenated and the
//     counters summed;
//   - a resumed run shares a prefix and its live-at-resume points with the
//     dynamic phase, which CombineResumed removes; the evaluation counter
//     subtracts the portion double-counted up to the resume checkpoint.
//
// Any validator failure aborts the merge.
func DynamicRun(loader engine.Loader, res *dynamic.Result, logger *zap.Logger) (*nsrun.Run, error) {
	init, err := loader.Load(res.BaseDir, res.InitRoot())
	if err != nil {
		return nil, fmt.Errorf("failed to load exploratory run: %w", err)
	}
	// Exploration holds a constant live-point set, so every thread must
	// have been live from the very start.
	for t, mm := range init.ThreadMinMax {
		if !math.IsInf(mm[0], -1) {
			return nil, fmt.Errorf("%w: exploratory thread %d born mid-run at logl %v",
				ErrMergeInconsistent, t, mm[0])
		}
	}

	dyn, err := loader.Load(res.BaseDir, res.DynRoot())
	if err != nil {
		return nil, fmt.Errorf("failed to load dynamic run: %w", err)
	}

	var run *nsrun.Run
	if !res.Resumed {
		// With goal 0 the live count only ever decreases, so the dynamic
		// threads must all start by sampling the prior too.
		for t, mm := range dyn.ThreadMinMax {
			if !math.IsInf(mm[0], -1) {
				return nil, fmt.Errorf("%w: independent dynamic thread %d born mid-run at logl %v",
					ErrMergeInconsistent, t, mm[0])
			}
		}
		run, err = nsrun.CombineRuns(init, dyn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMergeInconsistent, err)
		}
		run.Info.NLike = res.InitNLike + res.DynNLike
	} else {
		run, err = CombineResumed(init, dyn, res.ResumeNDead)
		if err != nil {
			return nil, err
		}
		run.Info.NLike = res.InitNLike + res.DynNLike - res.ResumeNLike
	}
	run.Info.NDead = run.Len()

	if err := nsrun.CheckRun(run); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeInconsistent, err)
	}
	logger.Info("merged dynamic run",
		zap.String("file_root", res.FileRoot),
		zap.Bool("resumed", res.Resumed),
		zap.Int("samples", run.Len()),
		zap.Int("threads", run.NumThreads()),
		zap.Int64("nlike", run.Info.NLike))
	return run, nil
}

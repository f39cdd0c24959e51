package dynamic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fagan2888/dyPolyChord/internal/engine"
	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// Pipeline wires the external collaborators into the two-phase driver.
type Pipeline struct {
	Engine engine.Engine
	Loader engine.Loader
	Logger *zap.Logger
}

// Config tunes one dynamic run.
type Config struct {
	Goal              float64 // 0 runs the dynamic phase fresh; nonzero resumes mid-exploration
	NInit             int
	InitStep          int
	Stride            int
	NLiveConst        int
	MaxNDead          int
	MaxInitIterations int
}

// Result is the metadata record attached to a completed dynamic run: the
// schedule used, the resume point, per-phase evaluation counters and the
// labels identifying the two phases.
type Result struct {
	ID       string
	BaseDir  string
	FileRoot string

	Goal     float64
	NInit    int
	InitStep int

	Resumed     bool
	ResumeNDead int
	ResumeNLike int64

	InitNLike int64
	DynNLike  int64
	DynNDead  int

	Schedule  engine.Schedule
	PeakOnset int

	CreatedAt time.Time
}

// InitRoot and DynRoot name the two phases' output files.
func (r *Result) InitRoot() string { return r.FileRoot + "_init" }
func (r *Result) DynRoot() string  { return r.FileRoot + "_dyn" }

// Run executes the full dynamic pipeline: exploration, schedule
// calculation, resume selection (unless Goal is zero), the dynamic engine
// invocation, and checkpoint cleanup. base must describe a fresh run; a
// preset resume flag or live-point schedule is a configuration error.
func (p *Pipeline) Run(ctx context.Context, base engine.Settings, cfg Config) (*Result, error) {
	if base.ReadResume {
		return nil, fmt.Errorf("%w: resume flag set on what should be a fresh run", ErrConfig)
	}
	if len(base.NLives) > 0 {
		return nil, fmt.Errorf("%w: live-point schedule already set before dynamic allocation", ErrConfig)
	}
	start := time.Now()

	exp, err := Explore(ctx, p.Engine, base, ExploreConfig{
		NInit:         cfg.NInit,
		InitStep:      cfg.InitStep,
		MaxIterations: cfg.MaxInitIterations,
	}, p.Logger)
	if err != nil {
		return nil, err
	}

	initRun, err := p.Loader.Load(base.BaseDir, base.FileRoot+"_init")
	if err != nil {
		return nil, fmt.Errorf("failed to load exploratory run %s: %w", base.FileRoot+"_init", err)
	}
	if initRun.NumThreads() != cfg.NInit {
		p.Logger.Warn("exploratory thread count differs from ninit",
			zap.Int("threads", initRun.NumThreads()),
			zap.Int("ninit", cfg.NInit))
	}

	alloc, err := CalculateSchedule(initRun, ScheduleConfig{
		NInit:      cfg.NInit,
		NLiveConst: cfg.NLiveConst,
		MaxNDead:   cfg.MaxNDead,
		Stride:     cfg.Stride,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:        uuid.NewString(),
		BaseDir:   base.BaseDir,
		FileRoot:  base.FileRoot,
		Goal:      cfg.Goal,
		NInit:     cfg.NInit,
		InitStep:  cfg.InitStep,
		Schedule:  alloc.Schedule,
		PeakOnset: alloc.PeakOnset,
		InitNLike: exp.History[len(exp.History)-1].NLike,
		CreatedAt: time.Now(),
	}

	dyn := base
	dyn.FileRoot = base.FileRoot + "_dyn"
	dyn.NLive = cfg.Stride
	dyn.NLives = alloc.Schedule
	dyn.MaxNDead = cfg.MaxNDead

	if cfg.Goal != 0 {
		cp, err := SelectResume(exp.History, alloc.PeakOnset)
		if err != nil {
			return nil, err
		}
		if err := engine.CopyCheckpoint(cp.Path, dyn.ResumePath()); err != nil {
			return nil, err
		}
		dyn.ReadResume = true
		res.Resumed = true
		res.ResumeNDead = cp.NDead
		res.ResumeNLike = cp.NLike
		p.Logger.Info("resuming dynamic phase from checkpoint",
			zap.Int("resume_ndead", cp.NDead),
			zap.Int("peak_onset", alloc.PeakOnset))
	}

	out, err := p.Engine.Run(ctx, dyn)
	if err != nil {
		return nil, fmt.Errorf("dynamic phase %s (checkpoint %s): %w", dyn.FileRoot, dyn.ResumePath(), err)
	}
	res.DynNLike = out.NLike
	res.DynNDead = out.NDead

	// All retained exploration checkpoints are now unreachable; the
	// selected one was consumed when the dynamic phase started.
	tagged := make([]string, len(exp.History))
	for i, cp := range exp.History {
		tagged[i] = cp.Path
	}
	if err := engine.RemoveCheckpoints(tagged...); err != nil {
		return nil, err
	}

	p.Logger.Info("dynamic run complete",
		zap.String("file_root", base.FileRoot),
		zap.Float64("goal", cfg.Goal),
		zap.Int("dyn_ndead", out.NDead),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// RunStandard performs a single constant-nlive engine invocation and loads
// its output. It is the non-dynamic counterpart of Run, sharing the same
// configuration checks.
func (p *Pipeline) RunStandard(ctx context.Context, base engine.Settings) (*nsrun.Run, error) {
	if base.ReadResume {
		return nil, fmt.Errorf("%w: resume flag set on what should be a fresh run", ErrConfig)
	}
	if len(base.NLives) > 0 {
		return nil, fmt.Errorf("%w: live-point schedule set on a standard run", ErrConfig)
	}
	start := time.Now()
	out, err := p.Engine.Run(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("standard run %s: %w", base.FileRoot, err)
	}
	run, err := p.Loader.Load(base.BaseDir, base.FileRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load standard run %s: %w", base.FileRoot, err)
	}
	run.Info.NLike = out.NLike
	p.Logger.Info("standard run complete",
		zap.String("file_root", base.FileRoot),
		zap.Int("ndead", out.NDead),
		zap.Duration("elapsed", time.Since(start)))
	return run, nil
}

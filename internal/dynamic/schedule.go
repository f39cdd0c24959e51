package dynamic

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/fagan2888/dyPolyChord/internal/engine"
	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// ScheduleFloorLogL seeds every schedule far below any real sample, so the
// dynamic phase starts with exactly ninit live points.
const ScheduleFloorLogL = -1e100

// ScheduleConfig tunes the live-point allocation.
type ScheduleConfig struct {
	NInit      int
	NLiveConst int // target live-point constant when no explicit budget is set
	MaxNDead   int // explicit total dead-point budget; <= 0 derives from NLiveConst
	Stride     int // down-sampling stride between schedule entries
}

// Allocation is the calculated live-point schedule plus the peak-onset
// index the Resume Selector needs.
type Allocation struct {
	Schedule  engine.Schedule
	PeakOnset int // first sample index whose target exceeds NInit
	Target    []float64
}

// CalculateSchedule converts the exploratory run's importance weights into
// a live-point schedule keyed by log-likelihood:
//
//  1. estimate log prior volume from the live-point array;
//  2. compute each sample's relative posterior mass (sums to 1);
//  3. scale the mass into a target live-point curve, by the remaining
//     dead-point budget when one is given, otherwise by
//     n * (nlive_const - ninit) / ninit;
//  4. clamp everything before the peak onset to exactly NInit, so the
//     schedule never dips below the exploratory count early on;
//  5. emit every Stride-th entry, assigning the target from one stride
//     ahead so the live count rises before the engine needs it.
//
// Entries with a target below 1 are omitted. A weight curve that never
// exceeds NInit is a configuration problem and fails explicitly.
func CalculateSchedule(init *nsrun.Run, cfg ScheduleConfig) (*Allocation, error) {
	if cfg.Stride <= 0 {
		return nil, fmt.Errorf("%w: schedule stride must be positive, got %d", ErrConfig, cfg.Stride)
	}
	if cfg.NInit <= 0 {
		return nil, fmt.Errorf("%w: ninit must be positive, got %d", ErrConfig, cfg.NInit)
	}
	n := init.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: exploratory run has no samples", ErrConfig)
	}

	logx, err := nsrun.LogX(init.NLive)
	if err != nil {
		return nil, fmt.Errorf("exploratory run volume estimate: %w", err)
	}
	w, err := nsrun.RelPosteriorMass(logx, init.LogL)
	if err != nil {
		return nil, fmt.Errorf("exploratory run posterior mass: %w", err)
	}

	var scale float64
	if cfg.MaxNDead > 0 {
		scale = float64(cfg.MaxNDead - n)
	} else {
		scale = float64(n) * float64(cfg.NLiveConst-cfg.NInit) / float64(cfg.NInit)
	}
	target := append([]float64(nil), w...)
	floats.Scale(scale, target)

	peak := -1
	for i, v := range target {
		if v > float64(cfg.NInit) {
			peak = i
			break
		}
	}
	if peak < 0 {
		return nil, fmt.Errorf("%w: target live counts never exceed ninit=%d "+
			"(exploratory run too short or budget too generous)", ErrScheduleInfeasible, cfg.NInit)
	}
	for i := 0; i < peak; i++ {
		target[i] = float64(cfg.NInit)
	}

	sched := engine.Schedule{}
	sched.Set(ScheduleFloorLogL, cfg.NInit)
	numSteps := n / cfg.Stride
	for i := 0; i+1 < numSteps; i++ {
		step := i * cfg.Stride
		ahead := (i + 1) * cfg.Stride
		nlive := int(target[ahead])
		if nlive >= 1 {
			sched.Set(init.LogL[step], nlive)
		}
	}
	return &Allocation{Schedule: sched, PeakOnset: peak, Target: target}, nil
}

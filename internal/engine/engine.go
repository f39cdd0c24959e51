// Package engine defines the contract with the external nested sampling
// engine: immutable per-invocation settings, the blocking run call, the
// loader that turns on-disk output into an in-memory run, and helpers for
// the opaque checkpoint files the engine leaves behind.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// ErrEngineFailure wraps any failure of the external engine call or an
// unreadable output. The core never retries; the wrapped error carries
// enough context (file root, checkpoint path) to resume manually.
var ErrEngineFailure = errors.New("sampling engine failure")

// ScheduleEntry maps a log-likelihood threshold to a target live-point
// count. Once the engine passes the threshold it adjusts its live set
// toward the target.
type ScheduleEntry struct {
	LogL  float64
	NLive int
}

// Schedule is a live-point schedule keyed by log-likelihood, kept sorted
// by threshold.
type Schedule []ScheduleEntry

// Set inserts or replaces the entry at the given threshold.
func (s *Schedule) Set(logl float64, nlive int) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i].LogL >= logl })
	if i < len(*s) && (*s)[i].LogL == logl {
		(*s)[i].NLive = nlive
		return
	}
	*s = append(*s, ScheduleEntry{})
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = ScheduleEntry{LogL: logl, NLive: nlive}
}

// At returns the live-point target in force at the given log-likelihood,
// i.e. the value of the highest threshold not above logl. ok is false when
// logl is below every threshold.
func (s Schedule) At(logl float64) (nlive int, ok bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].LogL > logl })
	if i == 0 {
		return 0, false
	}
	return s[i-1].NLive, true
}

// Settings is one immutable engine invocation: constructed fresh for each
// sampler call and never mutated in place.
type Settings struct {
	BaseDir  string
	FileRoot string

	NLive    int
	NLives   Schedule // empty for constant-nlive runs
	MaxNDead int      // <= 0 means run to natural termination
	NRepeats int
	Seed     int64

	ReadResume  bool
	WriteResume bool
}

// ResumePath is the engine's checkpoint file for this invocation.
func (s Settings) ResumePath() string {
	return filepath.Join(s.BaseDir, s.FileRoot+".resume")
}

// TaggedResumePath is where the controller retains a checkpoint copy
// tagged with the cumulative dead-point count at which it was taken.
func (s Settings) TaggedResumePath(ndead int) string {
	return filepath.Join(s.BaseDir, fmt.Sprintf("%s_%d.resume", s.FileRoot, ndead))
}

// DeadBirthPath is the engine's sample log for this invocation.
func (s Settings) DeadBirthPath() string {
	return filepath.Join(s.BaseDir, s.FileRoot+"_dead-birth.txt")
}

// IniPath is the settings file handed to a compiled engine executable.
func (s Settings) IniPath() string {
	return filepath.Join(s.BaseDir, s.FileRoot+".ini")
}

// Output is the engine's report for one blocking invocation.
type Output struct {
	NDead int   // dead points produced, including the final live points
	NLike int64 // cumulative likelihood evaluations
}

// Engine runs the external sampler. The call blocks until the requested
// dead-point cap or natural termination is reached; checkpoint and sample
// files are left under Settings.BaseDir as side effects.
type Engine interface {
	Run(ctx context.Context, s Settings) (Output, error)
}

// Loader parses the engine's on-disk output into an in-memory run.
type Loader interface {
	Load(baseDir, fileRoot string) (*nsrun.Run, error)
}

package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Compiled runs a compiled PolyChord-style executable. Each invocation
// writes a .ini settings file and execs the binary with the file path as
// its only argument; the binary leaves the dead-birth sample log, a stats
// file and (when requested) a resume checkpoint under BaseDir.
type Compiled struct {
	ExecPath   string
	PriorBlock string // prior block lines in the engine's .ini dialect
	DerivedStr string // optional derived-parameter block
}

// Run implements Engine.
func (c *Compiled) Run(ctx context.Context, s Settings) (Output, error) {
	if err := os.MkdirAll(s.BaseDir, 0755); err != nil {
		return Output{}, fmt.Errorf("%w: failed to create base dir %s: %v", ErrEngineFailure, s.BaseDir, err)
	}
	f, err := os.Create(s.IniPath())
	if err != nil {
		return Output{}, fmt.Errorf("%w: failed to create %s: %v", ErrEngineFailure, s.IniPath(), err)
	}
	if err := c.WriteIni(f, s); err != nil {
		f.Close()
		return Output{}, fmt.Errorf("%w: failed to write %s: %v", ErrEngineFailure, s.IniPath(), err)
	}
	if err := f.Close(); err != nil {
		return Output{}, fmt.Errorf("%w: failed to close %s: %v", ErrEngineFailure, s.IniPath(), err)
	}

	cmd := exec.CommandContext(ctx, c.ExecPath, s.IniPath())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return Output{}, fmt.Errorf("%w: %s %s: %v (checkpoint at %s)",
			ErrEngineFailure, c.ExecPath, s.IniPath(), err, s.ResumePath())
	}
	return c.readOutput(s)
}

// WriteIni writes the engine settings in PolyChord's .ini dialect:
// booleans as T/F, lists space separated, and the live-point schedule as
// parallel loglikes/nlives lines sorted by threshold.
func (c *Compiled) WriteIni(w *os.File, s Settings) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "base_dir = %s\n", s.BaseDir)
	fmt.Fprintf(bw, "file_root = %s\n", s.FileRoot)
	fmt.Fprintf(bw, "nlive = %d\n", s.NLive)
	fmt.Fprintf(bw, "max_ndead = %d\n", s.MaxNDead)
	if s.NRepeats > 0 {
		fmt.Fprintf(bw, "num_repeats = %d\n", s.NRepeats)
	}
	fmt.Fprintf(bw, "seed = %d\n", s.Seed)
	fmt.Fprintf(bw, "read_resume = %s\n", FormatBool(s.ReadResume))
	fmt.Fprintf(bw, "write_resume = %s\n", FormatBool(s.WriteResume))
	if len(s.NLives) > 0 {
		logls := make([]float64, len(s.NLives))
		nlives := make([]int, len(s.NLives))
		for i, e := range s.NLives {
			logls[i] = e.LogL
			nlives[i] = e.NLive
		}
		fmt.Fprintf(bw, "loglikes = %s\n", FormatFloats(logls))
		fmt.Fprintf(bw, "nlives = %s\n", FormatInts(nlives))
	}
	if c.PriorBlock != "" {
		fmt.Fprintln(bw, c.PriorBlock)
	}
	if c.DerivedStr != "" {
		fmt.Fprintln(bw, c.DerivedStr)
	}
	return bw.Flush()
}

// readOutput derives the engine report from its on-disk side effects: the
// dead-birth line count gives ndead, and the stats file (when present)
// reports the likelihood evaluation counter.
func (c *Compiled) readOutput(s Settings) (Output, error) {
	ndead, err := countLines(s.DeadBirthPath())
	if err != nil {
		return Output{}, fmt.Errorf("%w: unreadable sample log for %s: %v", ErrEngineFailure, s.FileRoot, err)
	}
	out := Output{NDead: ndead}
	if nlike, ok := readNLike(statsPath(s)); ok {
		out.NLike = nlike
	}
	return out, nil
}

func statsPath(s Settings) string {
	return strings.TrimSuffix(s.IniPath(), ".ini") + ".stats"
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}

// readNLike scans a stats file for the "nlike" line and returns the last
// integer on it. Stats files are optional; absence is not an error.
func readNLike(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(strings.ToLower(line), "nlike") {
			continue
		}
		fields := strings.Fields(line)
		for i := len(fields) - 1; i >= 0; i-- {
			if v, err := strconv.ParseInt(strings.TrimSuffix(fields[i], "."), 10, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// FormatBool renders a boolean the way the engine's .ini files expect.
func FormatBool(b bool) string {
	if b {
		return "T"
	}
	return "F"
}

// FormatFloats renders a list as space-separated values without brackets
// or commas.
func FormatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// FormatInts renders an integer list as space-separated values.
func FormatInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

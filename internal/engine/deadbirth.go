package engine

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fagan2888/dyPolyChord/internal/nsrun"
)

// birthAtStartThreshold: the engine writes a very large negative birth
// contour for points drawn directly from the prior. Anything at or below
// this is treated as born at the start of the run.
const birthAtStartThreshold = -1e29

// FileLoader parses the engine's dead-birth sample log into a run. Each
// line holds the parameter vector, the point's log-likelihood and the
// birth contour at which the point was drawn; walker threads are
// reconstructed by matching each birth contour to a point that died there.
type FileLoader struct{}

type deadBirthRow struct {
	theta []float64
	logl  float64
	birth float64
}

// Load implements Loader.
func (FileLoader) Load(baseDir, fileRoot string) (*nsrun.Run, error) {
	s := Settings{BaseDir: baseDir, FileRoot: fileRoot}
	rows, err := readDeadBirth(s.DeadBirthPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no samples in %s", ErrEngineFailure, s.DeadBirthPath())
	}

	run, err := runFromRows(rows)
	if err != nil {
		return nil, err
	}
	run.Info.NDead = run.Len()
	if nlike, ok := readNLike(statsPath(s)); ok {
		run.Info.NLike = nlike
	}
	return run, nil
}

func readDeadBirth(path string) ([]deadBirthRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []deadBirthRow
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("%s:%d: need at least theta, logl, birth columns", path, lineNo)
		}
		vals := make([]float64, len(fields))
		for i, fld := range fields {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad float %q: %v", path, lineNo, fld, err)
			}
			vals[i] = v
		}
		rows = append(rows, deadBirthRow{
			theta: vals[:len(vals)-2],
			logl:  vals[len(vals)-2],
			birth: vals[len(vals)-1],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// runFromRows assigns thread labels by birth-contour matching: a point
// born at contour b continues the thread of a point that died at b. Points
// with no matching death start a new thread (born at the beginning when
// the contour is the engine's start marker, mid-run otherwise).
func runFromRows(rows []deadBirthRow) (*nsrun.Run, error) {
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].logl < rows[b].logl })

	// Threads whose head died at a given contour and await continuation.
	open := make(map[float64][]int)
	var threads []*nsrun.Run
	for _, row := range rows {
		var label int
		switch {
		case row.birth <= birthAtStartThreshold:
			label = len(threads)
			threads = append(threads, &nsrun.Run{
				ThreadMinMax: [][2]float64{{nsrun.BirthAtStart, row.logl}},
			})
		case len(open[row.birth]) > 0:
			q := open[row.birth]
			label, open[row.birth] = q[0], q[1:]
		default:
			// Born mid-run with no dead parent in this file: a thread
			// started by a dynamic live-point increase.
			label = len(threads)
			threads = append(threads, &nsrun.Run{
				ThreadMinMax: [][2]float64{{row.birth, row.logl}},
			})
		}
		th := threads[label]
		th.Theta = append(th.Theta, row.theta)
		th.LogL = append(th.LogL, row.logl)
		th.NLive = append(th.NLive, 1)
		th.ThreadLabels = append(th.ThreadLabels, label)
		th.ThreadMinMax[0][1] = row.logl
		open[row.logl] = append(open[row.logl], label)
	}
	return nsrun.CombineThreads(threads, false)
}

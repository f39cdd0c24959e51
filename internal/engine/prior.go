package engine

import (
	"fmt"
	"strings"
)

// PriorSpec describes one block of prior lines for a compiled engine's .ini
// file. Params are the prior function's parameters, rendered space
// separated on each line.
type PriorSpec struct {
	Name       string
	Params     []float64
	NParam     int
	StartParam int // 1-based first parameter index; zero means 1
	Block      int // block number; zero means 1
	Speed      int // fast/slow grouping; zero means 1
}

// PriorBlock renders the prior block in the engine's .ini dialect, one
// "P : ..." line per parameter.
func PriorBlock(spec PriorSpec) string {
	start, block, speed := spec.StartParam, spec.Block, spec.Speed
	if start == 0 {
		start = 1
	}
	if block == 0 {
		block = 1
	}
	if speed == 0 {
		speed = 1
	}
	var sb strings.Builder
	for i := start; i < spec.NParam+start; i++ {
		fmt.Fprintf(&sb, `P : p%d | \theta_{%d} | %d | %s | %d |`, i, i, speed, spec.Name, block)
		sb.WriteString(FormatFloats(spec.Params))
		sb.WriteByte('\n')
	}
	return sb.String()
}

package dynamic

import (
	"fmt"
)

// SelectResume picks the checkpoint the dynamic phase resumes from: the
// latest one whose dead count, minus one (dead counts are 1-indexed and
// checkpoints are taken one sample ahead), falls strictly before the
// peak-onset index. Resuming before the peak guarantees the live-point
// growth happens during the dynamic phase instead of being skipped.
func SelectResume(history []Checkpoint, peakOnset int) (Checkpoint, error) {
	selected := -1
	for i, cp := range history {
		if cp.NDead-1 < peakOnset && (selected < 0 || cp.NDead >= history[selected].NDead) {
			selected = i
		}
	}
	if selected < 0 {
		return Checkpoint{}, fmt.Errorf("%w: peak onset %d precedes every retained checkpoint "+
			"(exploration or init_step too coarse)", ErrNoResumePoint, peakOnset)
	}
	return history[selected], nil
}

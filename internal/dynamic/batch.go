package dynamic

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunRepeats executes n independent repetitions of fn, at most parallel at
// a time (unlimited when parallel <= 0). Each repetition is a complete
// pipeline with its own file root; within one pipeline control flow stays
// strictly sequential, so repetitions never share checkpoint files. The
// first failure cancels the remaining repetitions.
func RunRepeats(ctx context.Context, n, parallel int, fn func(ctx context.Context, rep int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for rep := 0; rep < n; rep++ {
		rep := rep
		g.Go(func() error {
			return fn(ctx, rep)
		})
	}
	return g.Wait()
}

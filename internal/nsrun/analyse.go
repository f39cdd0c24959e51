package nsrun

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrEmptyRun is returned by estimators that need at least one sample.
var ErrEmptyRun = errors.New("empty run")

// LogX returns the cumulative log prior-volume estimate for each sample.
// The enclosed volume shrinks by an expected factor of exp(-1/nlive) at
// each dead point, so logx[i] = -sum_{j<=i} 1/nlive[j].
func LogX(nlive []int) ([]float64, error) {
	logx := make([]float64, len(nlive))
	acc := 0.0
	for i, n := range nlive {
		if n <= 0 {
			return nil, fmt.Errorf("nonpositive live point count %d at sample %d", n, i)
		}
		acc -= 1.0 / float64(n)
		logx[i] = acc
	}
	return logx, nil
}

// RelPosteriorMass returns each sample's relative contribution to the
// posterior mass, normalized so the contributions sum to 1. The unnormalized
// weight of sample i is exp(logl[i] + logx[i]).
func RelPosteriorMass(logx, logl []float64) ([]float64, error) {
	if len(logx) != len(logl) {
		return nil, fmt.Errorf("logx and logl length mismatch: %d != %d", len(logx), len(logl))
	}
	if len(logl) == 0 {
		return nil, ErrEmptyRun
	}
	logw := make([]float64, len(logl))
	floats.AddTo(logw, logx, logl)
	w := make([]float64, len(logw))
	shift := floats.Max(logw)
	for i, lw := range logw {
		w[i] = math.Exp(lw - shift)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w, nil
}

// LogZ returns a simple evidence estimate: the log-sum of each sample's
// likelihood times its expected shrinkage element X_i/nlive_i. Used only
// for reporting; statistical post-processing belongs to downstream tools.
func (r *Run) LogZ() (float64, error) {
	if r.Len() == 0 {
		return 0, ErrEmptyRun
	}
	logx, err := LogX(r.NLive)
	if err != nil {
		return 0, err
	}
	logw := make([]float64, r.Len())
	for i := range logw {
		logw[i] = r.LogL[i] + logx[i] - math.Log(float64(r.NLive[i]))
	}
	return floats.LogSumExp(logw), nil
}

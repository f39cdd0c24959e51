package likelihood

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGaussian(t *testing.T) {
	g := Gaussian(0.5)
	// At the origin only the normalisation term remains.
	want := -math.Log(2*math.Pi*0.25) * 3 / 2
	assert.InDelta(t, want, g([]float64{0, 0, 0}), 1e-12)
	// Moving away from the origin always lowers the likelihood.
	assert.Less(t, g([]float64{1, 0, 0}), g([]float64{0, 0, 0}))
	assert.InDelta(t, g([]float64{1, 2}), g([]float64{-2, 1}), 1e-12,
		"isotropic: same radius gives same logl")
}

func TestTwinGaussian(t *testing.T) {
	tg := TwinGaussian(1, 10)
	// Symmetric about the first axis's origin.
	assert.InDelta(t, tg([]float64{3, 0.5}), tg([]float64{-3, 0.5}), 1e-12)
	// Each mode carries half the mass of a single Gaussian.
	peak := tg([]float64{5, 0})
	single := Gaussian(1)([]float64{0, 0})
	assert.InDelta(t, single-math.Ln2, peak, 1e-10)
}

func TestGaussianMix(t *testing.T) {
	m := GaussianMix()
	// Modes are ordered by component weight: 0.5 at (0,-4), 0.3 at (4,0),
	// 0.2 at (-4,0).
	at := func(x, y float64) float64 { return m([]float64{x, y}) }
	assert.Greater(t, at(0, -4), at(4, 0))
	assert.Greater(t, at(4, 0), at(-4, 0))
}

func TestGaussianShell(t *testing.T) {
	s := GaussianShell(0.2, 2)
	assert.InDelta(t, 0, s([]float64{2, 0}), 1e-12, "maximal on the shell")
	assert.InDelta(t, s([]float64{0, 2}), s([]float64{-2, 0}), 1e-12)
	assert.Less(t, s([]float64{0, 0}), s([]float64{2, 0}))
}

func TestRastrigin(t *testing.T) {
	r := Rastrigin(10)
	assert.InDelta(t, 0, r([]float64{0, 0}), 1e-12, "global maximum at origin")
	// Integer lattice points are local maxima but strictly below zero.
	assert.Less(t, r([]float64{1, 0}), 0.0)
	assert.Greater(t, r([]float64{1, 0}), r([]float64{0.5, 0}))
}

func TestRosenbrock(t *testing.T) {
	r := Rosenbrock(1, 100)
	assert.InDelta(t, 0, r([]float64{1, 1}), 1e-12, "maximum on the ridge")
	assert.InDelta(t, 0, r([]float64{1, 1, 1}), 1e-12)
	assert.Less(t, r([]float64{0, 0}), 0.0)
	// The valley floor is much flatter than the walls.
	assert.Greater(t, r([]float64{0.5, 0.25}), r([]float64{0.5, 1}))
}

func TestUniformPrior(t *testing.T) {
	p := UniformPrior(-10, 10)
	assert.Equal(t, []float64{-10, 0, 10}, p([]float64{0, 0.5, 1}))

	cube := []float64{0.25}
	theta := p(cube)
	assert.Equal(t, []float64{-5}, theta)
	assert.Equal(t, []float64{0.25}, cube, "input cube stays untouched")
}

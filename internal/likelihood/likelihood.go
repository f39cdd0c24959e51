// Package likelihood holds the analytic test likelihoods used by the
// example problems and the integration tests. Each function maps a point
// in the sampling space to its log-likelihood; all of them are centred so
// the interesting structure sits inside a unit-scale prior box.
package likelihood

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Func is a log-likelihood over a point in parameter space.
type Func func(theta []float64) float64

// Gaussian returns an isotropic Gaussian likelihood centred on the origin
// with standard deviation sigma in every dimension.
func Gaussian(sigma float64) Func {
	return func(theta []float64) float64 {
		dim := float64(len(theta))
		rad2 := 0.0
		for _, t := range theta {
			rad2 += t * t
		}
		logl := -math.Log(2*math.Pi*sigma*sigma) * dim / 2
		return logl - rad2/(2*sigma*sigma)
	}
}

// TwinGaussian is an equal-weight mixture of two Gaussians of width sigma
// whose centres sit sepSigma standard deviations apart along the first
// axis.
func TwinGaussian(sigma, sepSigma float64) Func {
	g := Gaussian(sigma)
	return func(theta []float64) float64 {
		shifted := make([]float64, len(theta))
		copy(shifted, theta)
		shifted[0] = theta[0] + sigma*0.5*sepSigma
		logl1 := g(shifted)
		shifted[0] = theta[0] - sigma*0.5*sepSigma
		logl2 := g(shifted)
		return floats.LogSumExp([]float64{logl1, logl2}) - math.Ln2
	}
}

// GaussianMix is the standard three-component mixture: unit-width
// Gaussians at (4,0), (-4,0) and (0,4) with weights 0.2, 0.3 and 0.5.
// It needs at least two dimensions.
func GaussianMix() Func {
	var (
		offsets = [3][2]float64{{4, 0}, {-4, 0}, {0, 4}}
		weights = [3]float64{0.2, 0.3, 0.5}
	)
	g := Gaussian(1)
	return func(theta []float64) float64 {
		shifted := make([]float64, len(theta))
		copy(shifted, theta)
		logls := make([]float64, len(offsets))
		for i, off := range offsets {
			shifted[0] = theta[0] + off[0]
			shifted[1] = theta[1] + off[1]
			logls[i] = g(shifted) + math.Log(weights[i])
		}
		return floats.LogSumExp(logls)
	}
}

// GaussianShell is a thin shell of width sigma at radius rshell from the
// origin.
func GaussianShell(sigma, rshell float64) Func {
	return func(theta []float64) float64 {
		rad2 := 0.0
		for _, t := range theta {
			rad2 += t * t
		}
		d := math.Sqrt(rad2) - rshell
		return -(d * d) / (2 * sigma * sigma)
	}
}

// Rastrigin is the negated Rastrigin function with amplitude a, a heavily
// multimodal surface whose global maximum is at the origin.
func Rastrigin(a float64) Func {
	return func(theta []float64) float64 {
		f := a * float64(len(theta))
		for _, t := range theta {
			f += t*t - a*math.Cos(2*math.Pi*t)
		}
		return -f
	}
}

// Rosenbrock is the negated Rosenbrock function with the conventional
// parameters a and b, a curved degenerate ridge with its maximum at
// (a, a^2, ...).
func Rosenbrock(a, b float64) Func {
	return func(theta []float64) float64 {
		f := 0.0
		for i := 0; i+1 < len(theta); i++ {
			d := a - theta[i]
			f += d * d
			q := theta[i+1] - theta[i]*theta[i]
			f += b * q * q
		}
		return -f
	}
}

// UniformPrior maps unit-hypercube coordinates to the box [min, max] in
// every dimension, the transform a sampling engine applies before calling
// the likelihood.
func UniformPrior(min, max float64) func(cube []float64) []float64 {
	return func(cube []float64) []float64 {
		theta := make([]float64, len(cube))
		for i, c := range cube {
			theta[i] = min + (max-min)*c
		}
		return theta
	}
}

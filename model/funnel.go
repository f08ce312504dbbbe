package model

import (
	"math"

	"github.com/pkg/errors"
)

// Funnel is Neal's funnel: v ~ N(0, 3^2) and x_i | v ~ N(0, exp(v)) for the
// remaining dimensions. The neck of the funnel defeats a fixed step size, so
// this target reliably produces divergences - handy for exercising the
// divergence diagnostics.
type Funnel struct {
	dim int
}

// NewFunnel creates a funnel target with dim total parameters (the first is
// the scale parameter v).
func NewFunnel(dim int) (*Funnel, error) {
	if dim < 2 {
		return nil, errors.Errorf("Funnel requires dim >= 2, got %d", dim)
	}
	return &Funnel{dim: dim}, nil
}

// Dim returns the parameter count
func (f *Funnel) Dim() int {
	return f.dim
}

// LogDensity implements Target
func (f *Funnel) LogDensity(pos []float64, grad []float64) (float64, error) {
	v := pos[0]
	ev := math.Exp(-v)

	logp := -v * v / 18.0
	grad[0] = -v / 9.0

	// Each x_i contributes -v/2 - x_i^2 exp(-v)/2
	n := float64(f.dim - 1)
	logp -= 0.5 * v * n
	grad[0] -= 0.5 * n
	for i := 1; i < f.dim; i++ {
		x := pos[i]
		logp -= 0.5 * x * x * ev
		grad[i] = -x * ev
		grad[0] += 0.5 * x * x * ev
	}

	return logp, nil
}

// Singular has a pole at the origin: logp = -|x|^2/2 - 2 log(|x|^2). The
// gradient blows up as |x| -> 0, so trajectories that wander near the origin
// diverge. Exists for divergence-injection tests.
type Singular struct {
	dim int
}

// NewSingular creates a singular target of the given dimension.
func NewSingular(dim int) (*Singular, error) {
	if dim < 1 {
		return nil, errors.Errorf("Singular dimension %d is invalid", dim)
	}
	return &Singular{dim: dim}, nil
}

// Dim returns the parameter count
func (s *Singular) Dim() int {
	return s.dim
}

// LogDensity implements Target
func (s *Singular) LogDensity(pos []float64, grad []float64) (float64, error) {
	r2 := 0.0
	for _, x := range pos {
		r2 += x * x
	}
	if r2 == 0.0 {
		return math.Inf(-1), errors.Errorf("Log density undefined at the origin")
	}

	logp := -0.5*r2 - 2.0*math.Log(r2)
	for i, x := range pos {
		grad[i] = -x - 4.0*x/r2
	}
	return logp, nil
}

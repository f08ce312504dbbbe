package model

import (
	"math"

	"github.com/pkg/errors"
)

// Target is a (possibly unnormalized) log density over unconstrained
// parameters. LogDensity evaluates the log density at pos and writes the
// gradient into grad (len(grad) == len(pos) == Dim()).
//
// Returning an error, or a non-finite log density or gradient entry, marks
// the point as unusable. The sampler maps such failures to a divergence for
// the leapfrog step that reached the point - they are never fatal.
type Target interface {
	Dim() int
	LogDensity(pos []float64, grad []float64) (float64, error)
}

// CheckTarget verifies that a target evaluates cleanly at the given point.
// Used to validate chain starting points before sampling begins.
func CheckTarget(t Target, pos []float64) error {
	if t == nil {
		return errors.New("No target supplied")
	}
	if t.Dim() < 1 {
		return errors.Errorf("Target dimension %d is invalid", t.Dim())
	}
	if len(pos) != t.Dim() {
		return errors.Errorf("Position dim %d does not match target dim %d", len(pos), t.Dim())
	}

	grad := make([]float64, t.Dim())
	logp, err := t.LogDensity(pos, grad)
	if err != nil {
		return errors.Wrap(err, "Target failed at the initial point")
	}
	if !math.IsInf(logp, 0) && !math.IsNaN(logp) {
		for _, g := range grad {
			if math.IsInf(g, 0) || math.IsNaN(g) {
				return errors.Errorf("Target gradient is non-finite at the initial point")
			}
		}
		return nil
	}

	return errors.Errorf("Target log density %v is non-finite at the initial point", logp)
}

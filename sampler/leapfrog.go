package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tmcnab/nutshell/model"
)

// Divergence describes a leapfrog step that was rejected: either the energy
// error blew past the configured threshold, or the target could not be
// evaluated at the new position. Divergences are per-draw diagnostics, never
// failures - the trajectory simply stops growing in that direction.
type Divergence struct {
	// EnergyError is H(end) - H(start of trajectory). NaN when the target
	// evaluation itself failed.
	EnergyError float64
	Start       []float64 // position the bad step started from
	End         []float64 // position reached, nil when evaluation failed
	EvalErr     error     // non-nil for evaluation failures
}

// leapfrog advances phase-space states one symplectic step at a time against
// a fixed target and metric.
type leapfrog struct {
	target         model.Target
	metric         Metric
	maxEnergyError float64
}

// initialize evaluates the target at pos and returns a state ready to start
// a trajectory (momentum not yet sampled). An evaluation failure here is an
// error, not a divergence: a chain cannot start from an invalid point.
func (l *leapfrog) initialize(pos []float64) (*state, error) {
	s := newState(l.target.Dim())
	copy(s.pos, pos)

	logp, err := l.target.LogDensity(s.pos, s.grad)
	if err != nil {
		return nil, errors.Wrap(err, "Target evaluation failed at the starting point")
	}
	if !isFinite(logp) || !allFinite(s.grad) {
		return nil, errors.Errorf("Target is non-finite at the starting point")
	}

	s.logp = logp
	s.potential = -logp
	return s, nil
}

// step takes one leapfrog step of (signed) size eps from start: half-step
// momentum at the old gradient, full position step at the updated velocity,
// re-evaluate the target, final half-step momentum. The energy error of the
// new state is measured against initialEnergy, the energy at the
// trajectory's starting state.
//
// step is exactly reversible under sign negation of eps up to floating-point
// round-off (see TestLeapfrogReversible).
func (l *leapfrog) step(start *state, eps float64, initialEnergy float64) (*state, *Divergence) {
	out := newState(l.target.Dim())

	for i := range out.mom {
		out.mom[i] = start.mom[i] + 0.5*eps*start.grad[i]
	}
	l.metric.Velocity(out.vel, out.mom)
	for i := range out.pos {
		out.pos[i] = start.pos[i] + eps*out.vel[i]
	}

	logp, err := l.target.LogDensity(out.pos, out.grad)
	if err != nil || !isFinite(logp) || !allFinite(out.grad) {
		return nil, &Divergence{
			EnergyError: math.NaN(),
			Start:       copyFloats(start.pos),
			EvalErr:     err,
		}
	}
	out.logp = logp
	out.potential = -logp

	for i := range out.mom {
		out.mom[i] += 0.5 * eps * out.grad[i]
	}
	l.metric.Velocity(out.vel, out.mom)
	out.kinetic = l.metric.Kinetic(out.mom, out.vel)

	if eps > 0 {
		out.idx = start.idx + 1
	} else {
		out.idx = start.idx - 1
	}
	for i := range out.psum {
		out.psum[i] = start.psum[i] + out.mom[i]
	}

	energyErr := out.energy() - initialEnergy
	if math.IsNaN(energyErr) || math.Abs(energyErr) > l.maxEnergyError {
		return nil, &Divergence{
			EnergyError: energyErr,
			Start:       copyFloats(start.pos),
			End:         copyFloats(out.pos),
		}
	}

	return out, nil
}

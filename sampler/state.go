package sampler

import "math"

// state is one point in phase space plus the cached quantities the tree
// builder needs: the velocity (inverse mass matrix applied to momentum), the
// gradient of the log density, the signed index of the point along the
// current trajectory, and the running momentum sum used by the generalized
// U-turn test.
type state struct {
	pos  []float64
	mom  []float64
	vel  []float64
	grad []float64
	psum []float64

	logp      float64
	potential float64
	kinetic   float64

	idx int64
}

func newState(dim int) *state {
	return &state{
		pos:  make([]float64, dim),
		mom:  make([]float64, dim),
		vel:  make([]float64, dim),
		grad: make([]float64, dim),
		psum: make([]float64, dim),
	}
}

func (s *state) clone() *state {
	c := newState(len(s.pos))
	copy(c.pos, s.pos)
	copy(c.mom, s.mom)
	copy(c.vel, s.vel)
	copy(c.grad, s.grad)
	copy(c.psum, s.psum)
	c.logp = s.logp
	c.potential = s.potential
	c.kinetic = s.kinetic
	c.idx = s.idx
	return c
}

// energy is the Hamiltonian: potential plus kinetic. Finite for every state
// the tree builder keeps.
func (s *state) energy() float64 {
	return s.potential + s.kinetic
}

// logAcceptProb is the log Metropolis acceptance probability of this state
// relative to the trajectory's starting energy: min(0, H0 - H).
func (s *state) logAcceptProb(initialEnergy float64) float64 {
	return math.Min(0.0, initialEnergy-s.energy())
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func copyFloats(vs []float64) []float64 {
	out := make([]float64, len(vs))
	copy(out, vs)
	return out
}

// logAddExp is log(exp(a) + exp(b)) without overflow.
func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

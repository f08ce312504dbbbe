package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tmcnab/nutshell/rand"
)

// Metric is the mass matrix used to precondition momentum sampling. It must
// be positive definite. All three operations see only per-chain state, so a
// Metric value must not be shared between running chains.
type Metric interface {
	Dim() int

	// SampleMomentum fills mom with a draw from N(0, M)
	SampleMomentum(mom []float64, gen *rand.Generator)

	// Velocity computes vel = M^-1 mom
	Velocity(vel, mom []float64)

	// Kinetic is the kinetic energy mom . vel / 2
	Kinetic(mom, vel []float64) float64
}

// DiagMetric is a diagonal mass matrix stored as its inverse (an estimate of
// the target's marginal variances). The conservative default.
type DiagMetric struct {
	invMass []float64
	sqrtInv []float64
}

// NewDiagMetric builds a diagonal metric from the inverse mass (variance)
// vector. Every entry must be positive and finite.
func NewDiagMetric(invMass []float64) (*DiagMetric, error) {
	if len(invMass) < 1 {
		return nil, errors.Errorf("Empty inverse mass vector")
	}

	m := &DiagMetric{
		invMass: copyFloats(invMass),
		sqrtInv: make([]float64, len(invMass)),
	}
	for i, v := range invMass {
		if v <= 0 || !isFinite(v) {
			return nil, errors.Errorf("Inverse mass entry %d is %v - must be positive and finite", i, v)
		}
		m.sqrtInv[i] = math.Sqrt(v)
	}
	return m, nil
}

// NewIdentityMetric returns the unit diagonal metric used before any
// adaptation has happened.
func NewIdentityMetric(dim int) (*DiagMetric, error) {
	inv := make([]float64, dim)
	for i := range inv {
		inv[i] = 1.0
	}
	return NewDiagMetric(inv)
}

// Dim returns the parameter count
func (m *DiagMetric) Dim() int {
	return len(m.invMass)
}

// SampleMomentum implements Metric: p_i ~ N(0, 1/invMass_i)
func (m *DiagMetric) SampleMomentum(mom []float64, gen *rand.Generator) {
	for i := range mom {
		mom[i] = gen.NormFloat64() / m.sqrtInv[i]
	}
}

// Velocity implements Metric
func (m *DiagMetric) Velocity(vel, mom []float64) {
	for i := range vel {
		vel[i] = m.invMass[i] * mom[i]
	}
}

// Kinetic implements Metric
func (m *DiagMetric) Kinetic(mom, vel []float64) float64 {
	sum := 0.0
	for i := range mom {
		sum += mom[i] * vel[i]
	}
	return 0.5 * sum
}

// DenseMetric is a dense mass matrix stored as its inverse (an estimate of
// the target's full covariance). Momentum is sampled through the Cholesky
// factor of the inverse mass: for Sigma = L L', p = L'^-1 z is N(0, Sigma^-1).
type DenseMetric struct {
	invMass *mat.SymDense
	lower   *mat.TriDense
	dim     int
}

// NewDenseMetric builds a dense metric from the inverse mass (covariance)
// matrix, failing if it is not positive definite.
func NewDenseMetric(invMass *mat.SymDense) (*DenseMetric, error) {
	n := invMass.SymmetricDim()
	if n < 1 {
		return nil, errors.Errorf("Empty inverse mass matrix")
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(invMass); !ok {
		return nil, errors.Errorf("Inverse mass matrix is not positive definite")
	}

	m := &DenseMetric{
		invMass: mat.NewSymDense(n, nil),
		lower:   mat.NewTriDense(n, mat.Lower, nil),
		dim:     n,
	}
	m.invMass.CopySym(invMass)
	chol.LTo(m.lower)
	return m, nil
}

// Dim returns the parameter count
func (m *DenseMetric) Dim() int {
	return m.dim
}

// SampleMomentum implements Metric by back-substitution: solve L' p = z.
func (m *DenseMetric) SampleMomentum(mom []float64, gen *rand.Generator) {
	for i := range mom {
		mom[i] = gen.NormFloat64()
	}
	for i := m.dim - 1; i >= 0; i-- {
		sum := mom[i]
		for j := i + 1; j < m.dim; j++ {
			sum -= m.lower.At(j, i) * mom[j]
		}
		mom[i] = sum / m.lower.At(i, i)
	}
}

// Velocity implements Metric: vel = Sigma mom
func (m *DenseMetric) Velocity(vel, mom []float64) {
	v := mat.NewVecDense(m.dim, vel)
	v.MulVec(m.invMass, mat.NewVecDense(m.dim, mom))
}

// Kinetic implements Metric
func (m *DenseMetric) Kinetic(mom, vel []float64) float64 {
	sum := 0.0
	for i := range mom {
		sum += mom[i] * vel[i]
	}
	return 0.5 * sum
}

// A MetricAdapter accumulates warm-up draws and periodically produces a new
// metric estimate. Reset is called after every produced estimate so each
// warm-up window starts fresh.
type MetricAdapter interface {
	Update(pos []float64)
	Metric() (Metric, error)
	Reset()
}

// shrinkWeight is the Stan regularization: weight the sample estimate by
// n/(n+5) and shrink toward a small diagonal.
func shrinkWeight(n int) (float64, float64) {
	w := float64(n) / (float64(n) + 5.0)
	return w, 1e-3 * (1.0 - w)
}

// DiagAdapter is a Welford mean/variance accumulator producing diagonal
// metrics.
type DiagAdapter struct {
	dim   int
	count int
	mean  []float64
	m2    []float64
}

// NewDiagAdapter creates an empty accumulator
func NewDiagAdapter(dim int) *DiagAdapter {
	return &DiagAdapter{
		dim:  dim,
		mean: make([]float64, dim),
		m2:   make([]float64, dim),
	}
}

// Update implements MetricAdapter
func (a *DiagAdapter) Update(pos []float64) {
	a.count++
	n := float64(a.count)
	for i, x := range pos {
		delta := x - a.mean[i]
		a.mean[i] += delta / n
		a.m2[i] += delta * (x - a.mean[i])
	}
}

// Metric implements MetricAdapter. With fewer than 2 draws accumulated the
// estimate is undefined and the identity metric is returned.
func (a *DiagAdapter) Metric() (Metric, error) {
	if a.count < 2 {
		return NewIdentityMetric(a.dim)
	}

	w, floor := shrinkWeight(a.count)
	inv := make([]float64, a.dim)
	for i := range inv {
		inv[i] = w*a.m2[i]/float64(a.count-1) + floor
	}
	return NewDiagMetric(inv)
}

// Reset implements MetricAdapter
func (a *DiagAdapter) Reset() {
	a.count = 0
	for i := range a.mean {
		a.mean[i] = 0.0
		a.m2[i] = 0.0
	}
}

// DenseAdapter is the covariance generalization of Welford's method,
// producing dense metrics. Memory cost is O(D^2).
type DenseAdapter struct {
	dim   int
	count int
	mean  []float64
	m2    *mat.SymDense
}

// NewDenseAdapter creates an empty accumulator
func NewDenseAdapter(dim int) *DenseAdapter {
	return &DenseAdapter{
		dim:  dim,
		mean: make([]float64, dim),
		m2:   mat.NewSymDense(dim, nil),
	}
}

// Update implements MetricAdapter
func (a *DenseAdapter) Update(pos []float64) {
	a.count++
	n := float64(a.count)

	delta := make([]float64, a.dim)
	for i, x := range pos {
		delta[i] = x - a.mean[i]
		a.mean[i] += delta[i] / n
	}
	for i := 0; i < a.dim; i++ {
		for j := i; j < a.dim; j++ {
			a.m2.SetSym(i, j, a.m2.At(i, j)+delta[i]*(pos[j]-a.mean[j]))
		}
	}
}

// Metric implements MetricAdapter
func (a *DenseAdapter) Metric() (Metric, error) {
	if a.count < 2 {
		return NewIdentityMetric(a.dim)
	}

	w, floor := shrinkWeight(a.count)
	inv := mat.NewSymDense(a.dim, nil)
	for i := 0; i < a.dim; i++ {
		for j := i; j < a.dim; j++ {
			v := w * a.m2.At(i, j) / float64(a.count-1)
			if i == j {
				v += floor
			}
			inv.SetSym(i, j, v)
		}
	}
	return NewDenseMetric(inv)
}

// Reset implements MetricAdapter
func (a *DenseAdapter) Reset() {
	a.count = 0
	for i := range a.mean {
		a.mean[i] = 0.0
	}
	for i := 0; i < a.dim; i++ {
		for j := i; j < a.dim; j++ {
			a.m2.SetSym(i, j, 0.0)
		}
	}
}

// FixedAdapter wraps a user-supplied metric that never changes.
type FixedAdapter struct {
	m Metric
}

// NewFixedAdapter creates the trivial adapter around m
func NewFixedAdapter(m Metric) *FixedAdapter {
	return &FixedAdapter{m: m}
}

// Update implements MetricAdapter (no accumulation)
func (a *FixedAdapter) Update(pos []float64) {}

// Metric implements MetricAdapter
func (a *FixedAdapter) Metric() (Metric, error) {
	return a.m, nil
}

// Reset implements MetricAdapter (nothing to reset)
func (a *FixedAdapter) Reset() {}

// warmupSchedule partitions warm-up into an initial fast buffer (step size
// only), a series of doubling slow windows (metric estimation), and a
// terminal fast buffer. Short warm-ups scale the buffers down to 15%/10%
// with the remainder as a single window.
type warmupSchedule struct {
	initBuffer int
	lastSlow   int   // first iteration of the terminal buffer
	windowEnds []int // iterations whose completion triggers a metric rebuild
}

func newWarmupSchedule(warmup, initBuffer, termBuffer, baseWindow int) *warmupSchedule {
	ws := &warmupSchedule{}

	// Warm-ups this short cannot support a metric estimate at all; leave
	// step-size adaptation as the only warm-up activity
	if warmup < 20 {
		ws.initBuffer = warmup
		ws.lastSlow = warmup
		return ws
	}

	if warmup < initBuffer+termBuffer+baseWindow {
		initBuffer = int(0.15 * float64(warmup))
		termBuffer = int(0.10 * float64(warmup))
		baseWindow = warmup - initBuffer - termBuffer
	}

	ws.initBuffer = initBuffer
	ws.lastSlow = warmup - termBuffer
	if baseWindow <= 0 || ws.lastSlow <= initBuffer {
		// Not enough warm-up for metric windows at all
		ws.lastSlow = initBuffer
		return ws
	}

	start := initBuffer
	size := baseWindow
	for start < ws.lastSlow {
		end := start + size
		// The final window absorbs a remainder too small to double again
		if ws.lastSlow-end < 2*size {
			end = ws.lastSlow
		}
		ws.windowEnds = append(ws.windowEnds, end-1)
		start = end
		size *= 2
	}

	return ws
}

// adapting reports whether draws at this iteration feed the metric adapter.
func (ws *warmupSchedule) adapting(iter int) bool {
	return iter >= ws.initBuffer && iter < ws.lastSlow
}

// windowEnd reports whether the metric should be rebuilt after this
// iteration.
func (ws *warmupSchedule) windowEnd(iter int) bool {
	for _, e := range ws.windowEnds {
		if e == iter {
			return true
		}
	}
	return false
}

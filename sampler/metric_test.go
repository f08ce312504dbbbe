package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tmcnab/nutshell/rand"
)

func TestDiagMetricValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewDiagMetric([]float64{})
	assert.Error(err)
	_, err = NewDiagMetric([]float64{1.0, 0.0})
	assert.Error(err)
	_, err = NewDiagMetric([]float64{1.0, -2.0})
	assert.Error(err)

	m, err := NewDiagMetric([]float64{4.0, 0.25})
	assert.NoError(err)
	assert.Equal(2, m.Dim())
}

func TestDiagMetricOps(t *testing.T) {
	assert := assert.New(t)

	m, err := NewDiagMetric([]float64{4.0, 0.25})
	assert.NoError(err)

	vel := make([]float64, 2)
	mom := []float64{1.0, 2.0}
	m.Velocity(vel, mom)
	assert.InDeltaSlice([]float64{4.0, 0.5}, vel, 1e-12)
	assert.InDelta(0.5*(4.0+1.0), m.Kinetic(mom, vel), 1e-12)

	// Momentum variance should be the inverse of the inverse mass
	gen, err := rand.NewGenerator(5)
	assert.NoError(err)
	const n = 50000
	draws := make([][]float64, 2)
	draws[0] = make([]float64, n)
	draws[1] = make([]float64, n)
	p := make([]float64, 2)
	for i := 0; i < n; i++ {
		m.SampleMomentum(p, gen)
		draws[0][i] = p[0]
		draws[1][i] = p[1]
	}
	assert.InDelta(0.25, stat.Variance(draws[0], nil), 0.01)
	assert.InDelta(4.0, stat.Variance(draws[1], nil), 0.1)
}

func TestDenseMetricOps(t *testing.T) {
	assert := assert.New(t)

	sigma := mat.NewSymDense(2, []float64{2.0, 0.8, 0.8, 1.0})
	m, err := NewDenseMetric(sigma)
	assert.NoError(err)
	assert.Equal(2, m.Dim())

	// Velocity is Sigma p
	vel := make([]float64, 2)
	m.Velocity(vel, []float64{1.0, -1.0})
	assert.InDeltaSlice([]float64{1.2, -0.2}, vel, 1e-12)

	// Sampled momenta should have covariance Sigma^-1
	gen, err := rand.NewGenerator(6)
	assert.NoError(err)
	const n = 60000
	xs := mat.NewDense(n, 2, nil)
	p := make([]float64, 2)
	for i := 0; i < n; i++ {
		m.SampleMomentum(p, gen)
		xs.Set(i, 0, p[0])
		xs.Set(i, 1, p[1])
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, xs, nil)

	var chol mat.Cholesky
	assert.True(chol.Factorize(sigma))
	prec := mat.NewSymDense(2, nil)
	assert.NoError(chol.InverseTo(prec))

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(prec.At(i, j), cov.At(i, j), 0.05)
		}
	}

	// Not positive definite
	bad := mat.NewSymDense(2, []float64{1.0, 2.0, 2.0, 1.0})
	_, err = NewDenseMetric(bad)
	assert.Error(err)
}

func TestDiagAdapterWelford(t *testing.T) {
	assert := assert.New(t)

	a := NewDiagAdapter(1)
	xs := []float64{1.2, -0.4, 2.2, 0.9, -1.7, 0.3, 1.1, 0.0}
	for _, x := range xs {
		a.Update([]float64{x})
	}

	met, err := a.Metric()
	assert.NoError(err)
	dm := met.(*DiagMetric)

	n := len(xs)
	v := stat.Variance(xs, nil)
	w := float64(n) / (float64(n) + 5.0)
	expected := w*v + 1e-3*(1.0-w)
	assert.InDelta(expected, dm.invMass[0], 1e-12)

	// Reset empties the accumulator: identity falls out
	a.Reset()
	met, err = a.Metric()
	assert.NoError(err)
	assert.InDelta(1.0, met.(*DiagMetric).invMass[0], 1e-12)
}

func TestDenseAdapterWelford(t *testing.T) {
	assert := assert.New(t)

	a := NewDenseAdapter(2)
	xs := [][]float64{
		{1.0, 2.0}, {0.5, -1.0}, {-0.2, 0.3}, {1.4, 1.9}, {-0.8, -0.5}, {0.1, 0.2},
	}
	data := mat.NewDense(len(xs), 2, nil)
	for i, x := range xs {
		a.Update(x)
		data.SetRow(i, x)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	met, err := a.Metric()
	assert.NoError(err)
	dm := met.(*DenseMetric)

	n := float64(len(xs))
	w := n / (n + 5.0)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			expected := w * cov.At(i, j)
			if i == j {
				expected += 1e-3 * (1.0 - w)
			}
			assert.InDelta(expected, dm.invMass.At(i, j), 1e-10)
		}
	}
}

func TestFixedAdapter(t *testing.T) {
	assert := assert.New(t)

	fixed, err := NewDiagMetric([]float64{2.0})
	assert.NoError(err)
	a := NewFixedAdapter(fixed)

	a.Update([]float64{100.0})
	a.Reset()
	met, err := a.Metric()
	assert.NoError(err)
	assert.Equal(fixed, met)
}

func TestWarmupSchedule(t *testing.T) {
	assert := assert.New(t)

	// Standard 1000-draw warm-up with default 75/50/25 buffers
	ws := newWarmupSchedule(1000, 75, 50, 25)
	assert.False(ws.adapting(74))
	assert.True(ws.adapting(75))
	assert.True(ws.adapting(949))
	assert.False(ws.adapting(950))

	assert.Equal([]int{99, 149, 249, 449, 949}, ws.windowEnds)
	assert.True(ws.windowEnd(99))
	assert.True(ws.windowEnd(949))
	assert.False(ws.windowEnd(950))
	assert.False(ws.windowEnd(100))

	// Short warm-up scales the buffers down
	ws = newWarmupSchedule(100, 75, 50, 25)
	assert.Equal([]int{89}, ws.windowEnds)
	assert.False(ws.adapting(14))
	assert.True(ws.adapting(15))
	assert.False(ws.adapting(90))

	// Tiny warm-up: no metric windows at all
	ws = newWarmupSchedule(5, 75, 50, 25)
	assert.Empty(ws.windowEnds)
	for i := 0; i < 5; i++ {
		assert.False(ws.adapting(i))
		assert.False(ws.windowEnd(i))
	}

	// Zero warm-up
	ws = newWarmupSchedule(0, 75, 50, 25)
	assert.Empty(ws.windowEnds)
}

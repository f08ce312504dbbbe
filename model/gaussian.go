package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Gaussian is an independent normal target with per-dimension mean and
// standard deviation. The log density drops all constant terms.
type Gaussian struct {
	Mean   []float64
	Stddev []float64
}

// NewGaussian returns a standard normal target of the given dimension.
func NewGaussian(dim int) (*Gaussian, error) {
	if dim < 1 {
		return nil, errors.Errorf("Gaussian dimension %d is invalid", dim)
	}

	g := &Gaussian{
		Mean:   make([]float64, dim),
		Stddev: make([]float64, dim),
	}
	for i := range g.Stddev {
		g.Stddev[i] = 1.0
	}
	return g, nil
}

// Dim returns the parameter count
func (g *Gaussian) Dim() int {
	return len(g.Mean)
}

// LogDensity implements Target
func (g *Gaussian) LogDensity(pos []float64, grad []float64) (float64, error) {
	logp := 0.0
	for i, x := range pos {
		sd := g.Stddev[i]
		z := (x - g.Mean[i]) / sd
		logp -= 0.5 * z * z
		grad[i] = -z / sd
	}
	return logp, nil
}

// MVGaussian is a zero-mean multivariate normal with a dense covariance,
// useful both as a correlated test posterior and as a demo target for the
// dense metric. The precision matrix is computed once up front.
type MVGaussian struct {
	cov  *mat.SymDense
	prec *mat.SymDense
	dim  int
}

// NewMVGaussian builds the target from a covariance matrix. Fails if the
// covariance is not symmetric positive definite.
func NewMVGaussian(cov *mat.SymDense) (*MVGaussian, error) {
	n := cov.SymmetricDim()
	if n < 1 {
		return nil, errors.Errorf("Covariance dimension %d is invalid", n)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, errors.Errorf("Covariance matrix is not positive definite")
	}

	prec := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(prec); err != nil {
		return nil, errors.Wrap(err, "Could not invert covariance matrix")
	}

	g := &MVGaussian{
		cov:  mat.NewSymDense(n, nil),
		prec: prec,
		dim:  n,
	}
	g.cov.CopySym(cov)
	return g, nil
}

// Dim returns the parameter count
func (g *MVGaussian) Dim() int {
	return g.dim
}

// Cov returns the covariance the target was built from.
func (g *MVGaussian) Cov() *mat.SymDense {
	return g.cov
}

// LogDensity implements Target: logp = -x' P x / 2, grad = -P x.
func (g *MVGaussian) LogDensity(pos []float64, grad []float64) (float64, error) {
	x := mat.NewVecDense(g.dim, pos)
	px := mat.NewVecDense(g.dim, nil)
	px.MulVec(g.prec, x)

	logp := -0.5 * mat.Dot(x, px)
	for i := 0; i < g.dim; i++ {
		grad[i] = -px.AtVec(i)
	}
	return logp, nil
}

package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tmcnab/nutshell/buffer"
)

// Dual-averaging constants from Hoffman & Gelman (2014).
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75

	// stepSizeWindow is the trailing window of log step sizes kept for
	// convergence diagnostics.
	stepSizeWindow = 50
)

// DualAverage adapts the leapfrog step size toward a target acceptance
// statistic. Each warm-up iteration feeds the observed acceptance statistic
// in; StepSize always holds the value the next trajectory should use.
type DualAverage struct {
	StepSize float64

	// Window holds the trailing log step sizes so callers can check how
	// settled the adaptation is.
	Window *buffer.CircularFloat

	target     float64
	mu         float64
	logStep    float64
	logAvgStep float64
	hBar       float64
	count      int
}

// NewDualAverage starts adaptation from the given initial step size.
func NewDualAverage(initStep, target float64) *DualAverage {
	da := &DualAverage{
		Window: buffer.NewCircularFloat(stepSizeWindow),
	}
	da.target = target
	da.Restart(initStep)
	return da
}

// Restart re-centers the adapter on a new initial step size. Called whenever
// the metric changes, since the old acceptance history no longer applies.
func (da *DualAverage) Restart(initStep float64) {
	da.StepSize = initStep
	da.mu = math.Log(10.0 * initStep)
	da.logStep = math.Log(initStep)
	da.logAvgStep = da.logStep
	da.hBar = 0.0
	da.count = 0
	da.Window = buffer.NewCircularFloat(stepSizeWindow)
}

// Update consumes one acceptance statistic and moves the step size.
func (da *DualAverage) Update(accept float64) {
	da.count++
	m := float64(da.count)

	da.hBar += (da.target - accept - da.hBar) / (m + daT0)
	da.logStep = da.mu - math.Sqrt(m)/daGamma*da.hBar

	eta := math.Pow(m, -daKappa)
	da.logAvgStep = eta*da.logStep + (1.0-eta)*da.logAvgStep

	da.StepSize = math.Exp(da.logStep)
	da.Window.Add(da.logStep)
}

// Freeze ends adaptation: the step size becomes the dual-averaged value
// rather than the last raw iterate, which is much less noisy.
func (da *DualAverage) Freeze() {
	da.StepSize = math.Exp(da.logAvgStep)
}

// findInitialStepSize probes for a step size whose single-step acceptance
// probability crosses 0.5, repeatedly doubling or halving from the initial
// guess. start must already carry a sampled momentum. The number of tries is
// bounded so a pathological target cannot hang the chain.
func findInitialStepSize(lf *leapfrog, start *state, eps float64) (float64, error) {
	h0 := start.energy()

	accept := func(eps float64) float64 {
		end, div := lf.step(start, eps, h0)
		if div != nil {
			return 0.0
		}
		return math.Exp(end.logAcceptProb(h0))
	}

	grow := accept(eps) > 0.5
	for i := 0; i < 100; i++ {
		if grow {
			eps *= 2.0
		} else {
			eps *= 0.5
		}
		if eps > 1e7 || eps < 1e-10 {
			return 0, errors.Errorf("Step size search left (1e-10, 1e7) - check the target's scaling")
		}

		a := accept(eps)
		if grow && a <= 0.5 {
			return eps, nil
		}
		if !grow && a >= 0.5 {
			return eps, nil
		}
	}

	return 0, errors.Errorf("No reasonable initial step size after 100 tries")
}

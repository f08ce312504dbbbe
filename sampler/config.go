package sampler

import (
	"runtime"

	"github.com/pkg/errors"
)

// MetricKind selects how the mass matrix is obtained.
type MetricKind int

// Recognized metric kinds
const (
	// MetricDiag estimates a diagonal inverse mass matrix during warm-up.
	// The conservative default.
	MetricDiag MetricKind = iota

	// MetricDense estimates a full covariance - better for strongly
	// correlated posteriors, at O(D^2) memory and compute.
	MetricDense

	// MetricFixed uses the caller-supplied FixedMetric unchanged.
	MetricFixed
)

// Config holds every option a sampler run recognizes. Zero values are filled
// by DefaultConfig; Check rejects inconsistent settings before any chain
// starts.
type Config struct {
	Dim           int   // parameter count, must match the target
	Chains        int   // number of independent chains
	WarmupDraws   int   // adaptation draws per chain (discarded by convention)
	SamplingDraws int   // post-warm-up draws per chain
	Seed          int64 // global seed; chain i uses the (Seed, i) stream
	MaxParallel   int   // worker pool size, defaults to NumCPU

	TargetAccept        float64 // acceptance-statistic goal (default 0.8)
	MaxTreeDepth        int     // doubling cap (default 10)
	DivergenceThreshold float64 // energy-error cutoff (default 1000)
	InitialStepSize     float64 // 0 means search for one

	Metric      MetricKind
	FixedMetric Metric // required iff Metric == MetricFixed

	// Warm-up window schedule (defaults 75/50/25, scaled for short warm-ups)
	InitBuffer int
	TermBuffer int
	BaseWindow int

	InitialPoint []float64 // optional; per-chain uniform(-2,2) when nil
	ResultBuffer int       // record channel capacity
}

// DefaultConfig returns the standard configuration for a target of the given
// dimension.
func DefaultConfig(dim int) *Config {
	return &Config{
		Dim:           dim,
		Chains:        4,
		WarmupDraws:   1000,
		SamplingDraws: 1000,
		Seed:          1,
		MaxParallel:   runtime.NumCPU(),

		TargetAccept:        0.8,
		MaxTreeDepth:        10,
		DivergenceThreshold: 1000.0,

		Metric:     MetricDiag,
		InitBuffer: 75,
		TermBuffer: 50,
		BaseWindow: 25,

		ResultBuffer: 64,
	}
}

// Check returns an error if there is a problem with the configuration
func (c *Config) Check() error {
	if c.Dim < 1 {
		return errors.Errorf("Dimension %d is invalid", c.Dim)
	}
	if c.Chains < 1 {
		return errors.Errorf("Chain count %d is invalid", c.Chains)
	}
	if c.WarmupDraws < 0 {
		return errors.Errorf("Warm-up draw count %d is invalid", c.WarmupDraws)
	}
	if c.SamplingDraws < 1 {
		return errors.Errorf("Sampling draw count %d is invalid", c.SamplingDraws)
	}
	if c.MaxParallel < 1 {
		return errors.Errorf("Parallelism %d is invalid", c.MaxParallel)
	}

	if c.TargetAccept <= 0.0 || c.TargetAccept >= 1.0 {
		return errors.Errorf("Target acceptance %f must be in (0, 1)", c.TargetAccept)
	}
	if c.MaxTreeDepth < 1 || c.MaxTreeDepth > 30 {
		return errors.Errorf("Max tree depth %d must be in [1, 30]", c.MaxTreeDepth)
	}
	if c.DivergenceThreshold <= 0.0 {
		return errors.Errorf("Divergence threshold %f must be positive", c.DivergenceThreshold)
	}
	if c.InitialStepSize < 0.0 || !isFinite(c.InitialStepSize) {
		return errors.Errorf("Initial step size %f is invalid", c.InitialStepSize)
	}

	switch c.Metric {
	case MetricDiag, MetricDense:
		if c.FixedMetric != nil {
			return errors.Errorf("FixedMetric set but metric kind is adaptive")
		}
	case MetricFixed:
		if c.FixedMetric == nil {
			return errors.Errorf("Metric kind is fixed but no FixedMetric supplied")
		}
		if c.FixedMetric.Dim() != c.Dim {
			return errors.Errorf("FixedMetric dim %d != %d", c.FixedMetric.Dim(), c.Dim)
		}
	default:
		return errors.Errorf("Unknown metric kind %d", c.Metric)
	}

	if c.InitBuffer < 0 || c.TermBuffer < 0 || c.BaseWindow < 0 {
		return errors.Errorf("Warm-up schedule values must be non-negative")
	}
	if c.WarmupDraws > 0 && c.BaseWindow == 0 && c.Metric != MetricFixed {
		return errors.Errorf("Adaptive metric requires a non-zero base window")
	}

	if c.InitialPoint != nil && len(c.InitialPoint) != c.Dim {
		return errors.Errorf("Initial point dim %d != %d", len(c.InitialPoint), c.Dim)
	}
	if c.ResultBuffer < 0 {
		return errors.Errorf("Result buffer %d is invalid", c.ResultBuffer)
	}

	return nil
}

package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig(5)
	assert.NoError(cfg.Check())
	assert.Equal(5, cfg.Dim)
	assert.Equal(0.8, cfg.TargetAccept)
	assert.Equal(10, cfg.MaxTreeDepth)
	assert.Equal(1000.0, cfg.DivergenceThreshold)
	assert.Equal(MetricDiag, cfg.Metric)
	assert.True(cfg.MaxParallel >= 1)
}

func TestConfigCheck(t *testing.T) {
	assert := assert.New(t)

	check := func(mod func(*Config)) error {
		cfg := DefaultConfig(3)
		mod(cfg)
		return cfg.Check()
	}

	assert.Error(check(func(c *Config) { c.Dim = 0 }))
	assert.Error(check(func(c *Config) { c.Chains = 0 }))
	assert.Error(check(func(c *Config) { c.WarmupDraws = -1 }))
	assert.Error(check(func(c *Config) { c.SamplingDraws = 0 }))
	assert.Error(check(func(c *Config) { c.MaxParallel = 0 }))
	assert.Error(check(func(c *Config) { c.TargetAccept = 0.0 }))
	assert.Error(check(func(c *Config) { c.TargetAccept = 1.0 }))
	assert.Error(check(func(c *Config) { c.MaxTreeDepth = 0 }))
	assert.Error(check(func(c *Config) { c.MaxTreeDepth = 64 }))
	assert.Error(check(func(c *Config) { c.DivergenceThreshold = -1.0 }))
	assert.Error(check(func(c *Config) { c.InitialStepSize = -0.5 }))
	assert.Error(check(func(c *Config) { c.Metric = MetricFixed }))
	assert.Error(check(func(c *Config) { c.Metric = MetricKind(42) }))
	assert.Error(check(func(c *Config) { c.InitialPoint = []float64{1.0} }))
	assert.Error(check(func(c *Config) { c.BaseWindow = -1 }))
	assert.Error(check(func(c *Config) { c.BaseWindow = 0 }))
	assert.Error(check(func(c *Config) { c.ResultBuffer = -1 }))

	// Fixed metric needs the matching metric value - and only then
	fixed, err := NewIdentityMetric(3)
	assert.NoError(err)
	assert.NoError(check(func(c *Config) {
		c.Metric = MetricFixed
		c.FixedMetric = fixed
	}))
	assert.Error(check(func(c *Config) { c.FixedMetric = fixed }))

	wrongDim, err := NewIdentityMetric(2)
	assert.NoError(err)
	assert.Error(check(func(c *Config) {
		c.Metric = MetricFixed
		c.FixedMetric = wrongDim
	}))

	// Zero warm-up is allowed (no adaptation happens)
	assert.NoError(check(func(c *Config) { c.WarmupDraws = 0 }))
}

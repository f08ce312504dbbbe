package sampler

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tmcnab/nutshell/model"
	"github.com/tmcnab/nutshell/rand"
)

// initRetries is how many random starting points a chain tries before giving
// up when no initial point is configured.
const initRetries = 100

// SampleRecord is one draw from one chain together with its per-draw
// diagnostics.
type SampleRecord struct {
	Chain  int
	Draw   int  // 0-based iteration index, warm-up included
	Warmup bool // true for warm-up (adaptation) draws

	Position []float64

	Depth       int         // trajectory tree depth
	Diverged    bool        // trajectory stopped on a divergence
	Divergence  *Divergence // details when Diverged
	MaxDepth    bool        // doubling stopped by the depth cap
	StepSize    float64     // step size the trajectory was built with
	AcceptStat  float64     // mean acceptance probability across the trajectory
	Leapfrogs   int         // leapfrog steps (= gradient evaluations)
	EnergyError float64     // H(draw) - H(start)
}

// Chain is one independent NUTS chain. It owns its position, PRNG stream,
// step-size adapter, and metric adapter outright - nothing here is shared
// with any other chain - and walks warm-up -> sampling -> done.
type Chain struct {
	ID int

	cfg    *Config
	target model.Target
	gen    *rand.Generator

	lf            *leapfrog
	builder       *builder
	stepAdapter   *DualAverage
	metricAdapter MetricAdapter
	sched         *warmupSchedule

	cur  *state
	draw int
}

// NewChain builds a ready-to-run chain. The configuration must already have
// passed Check. Fails if no valid starting point can be found or the initial
// step size search gives up.
func NewChain(cfg *Config, target model.Target, id int) (*Chain, error) {
	gen, err := rand.NewChainGenerator(cfg.Seed, id)
	if err != nil {
		return nil, err
	}

	var metric Metric
	if cfg.Metric == MetricFixed {
		metric = cfg.FixedMetric
	} else {
		metric, err = NewIdentityMetric(cfg.Dim)
		if err != nil {
			return nil, err
		}
	}

	c := &Chain{
		ID:     id,
		cfg:    cfg,
		target: target,
		gen:    gen,
		lf: &leapfrog{
			target:         target,
			metric:         metric,
			maxEnergyError: cfg.DivergenceThreshold,
		},
		sched: newWarmupSchedule(cfg.WarmupDraws, cfg.InitBuffer, cfg.TermBuffer, cfg.BaseWindow),
	}
	c.builder = &builder{
		lf:       c.lf,
		gen:      gen,
		maxDepth: cfg.MaxTreeDepth,
	}

	switch cfg.Metric {
	case MetricDense:
		c.metricAdapter = NewDenseAdapter(cfg.Dim)
	case MetricFixed:
		c.metricAdapter = NewFixedAdapter(metric)
	default:
		c.metricAdapter = NewDiagAdapter(cfg.Dim)
	}

	if err := c.initPosition(); err != nil {
		return nil, errors.Wrapf(err, "Chain %d could not initialize", id)
	}

	eps := cfg.InitialStepSize
	if eps == 0.0 {
		eps, err = c.findStepSize()
		if err != nil {
			return nil, errors.Wrapf(err, "Chain %d could not find an initial step size", id)
		}
	}
	c.stepAdapter = NewDualAverage(eps, cfg.TargetAccept)

	return c, nil
}

// initPosition sets the chain's starting state: the configured point if any,
// otherwise uniform(-2, 2) per coordinate from the chain's own stream, with
// retries in case the target is invalid there.
func (c *Chain) initPosition() error {
	if c.cfg.InitialPoint != nil {
		cur, err := c.lf.initialize(c.cfg.InitialPoint)
		if err != nil {
			return err
		}
		c.cur = cur
		return nil
	}

	pos := make([]float64, c.cfg.Dim)
	var err error
	for try := 0; try < initRetries; try++ {
		for i := range pos {
			pos[i] = 4.0*c.gen.Float64() - 2.0
		}
		var cur *state
		cur, err = c.lf.initialize(pos)
		if err == nil {
			c.cur = cur
			return nil
		}
	}
	return errors.Wrapf(err, "No valid starting point in %d tries", initRetries)
}

// findStepSize runs the bisection-style search from the current position
// with a freshly sampled momentum.
func (c *Chain) findStepSize() (float64, error) {
	probe := c.cur.clone()
	c.refreshMomentum(probe)
	return findInitialStepSize(c.lf, probe, 1.0)
}

// refreshMomentum resamples the momentum from the current metric and resets
// the trajectory bookkeeping. Momentum never survives across iterations.
func (c *Chain) refreshMomentum(s *state) {
	c.lf.metric.SampleMomentum(s.mom, c.gen)
	c.lf.metric.Velocity(s.vel, s.mom)
	s.kinetic = c.lf.metric.Kinetic(s.mom, s.vel)
	s.idx = 0
	copy(s.psum, s.mom)
}

// Total is the number of iterations the chain will run.
func (c *Chain) Total() int {
	return c.cfg.WarmupDraws + c.cfg.SamplingDraws
}

// Done reports whether the chain has produced every configured draw.
func (c *Chain) Done() bool {
	return c.draw >= c.Total()
}

// Iterate runs one warm-up or sampling iteration and returns its record.
func (c *Chain) Iterate() (SampleRecord, error) {
	if c.Done() {
		return SampleRecord{}, errors.Errorf("Chain %d is already done", c.ID)
	}

	c.refreshMomentum(c.cur)

	used := c.stepAdapter.StepSize
	c.builder.stepSize = used
	next, info := c.builder.draw(c.cur)
	c.cur = next

	warmup := c.draw < c.cfg.WarmupDraws
	if warmup {
		c.stepAdapter.Update(info.AcceptStat)

		if c.sched.adapting(c.draw) {
			c.metricAdapter.Update(c.cur.pos)
		}
		if c.sched.windowEnd(c.draw) {
			if err := c.rebuildMetric(); err != nil {
				return SampleRecord{}, errors.Wrapf(err, "Chain %d metric update failed", c.ID)
			}
		}
		if c.draw == c.cfg.WarmupDraws-1 {
			c.stepAdapter.Freeze()
		}
	}

	rec := SampleRecord{
		Chain:       c.ID,
		Draw:        c.draw,
		Warmup:      warmup,
		Position:    copyFloats(c.cur.pos),
		Depth:       info.Depth,
		Diverged:    info.Diverged != nil,
		Divergence:  info.Diverged,
		MaxDepth:    info.MaxDepth,
		StepSize:    used,
		AcceptStat:  info.AcceptStat,
		Leapfrogs:   info.Leapfrogs,
		EnergyError: info.EnergyError,
	}
	c.draw++
	return rec, nil
}

// rebuildMetric swaps in the freshly estimated mass matrix and restarts the
// step-size adapter, since the momentum distribution just changed under it.
func (c *Chain) rebuildMetric() error {
	met, err := c.metricAdapter.Metric()
	if err != nil {
		return err
	}
	c.lf.metric = met
	c.metricAdapter.Reset()

	eps, err := c.findStepSize()
	if err != nil {
		// Keep the adapted value rather than killing the chain: the search
		// can fail transiently on nasty targets
		eps = c.stepAdapter.StepSize
	}
	c.stepAdapter.Restart(eps)
	return nil
}

// Run advances the chain to completion, pushing one record per iteration.
// Cancellation is checked between iterations only, so an in-flight
// trajectory always completes and cancellation latency is bounded by one
// iteration.
func (c *Chain) Run(ctx context.Context, out chan<- SampleRecord) error {
	for !c.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := c.Iterate()
		if err != nil {
			return err
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

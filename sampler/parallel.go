// Package sampler implements an adaptive No-U-Turn sampler: a leapfrog
// integrator, the recursive trajectory-doubling tree builder, dual-averaging
// step-size adaptation, windowed mass-matrix adaptation, and a parallel
// multi-chain driver that streams draws to the caller.
package sampler

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tmcnab/nutshell/model"
)

// Sampler runs a set of fully independent chains over a bounded worker pool
// and streams their draws to a single consumer. Records are ordered within a
// chain; chains interleave arbitrarily.
type Sampler struct {
	cfg    *Config
	target model.Target

	records chan SampleRecord
	errs    []error
	done    chan struct{}
	started bool
}

// New validates the configuration against the target and builds a sampler.
// A nil config gets DefaultConfig for the target's dimension.
func New(cfg *Config, target model.Target) (*Sampler, error) {
	if target == nil {
		return nil, errors.Errorf("No target supplied")
	}
	if cfg == nil {
		cfg = DefaultConfig(target.Dim())
	}
	if cfg.Dim != target.Dim() {
		return nil, errors.Errorf("Config dim %d != target dim %d", cfg.Dim, target.Dim())
	}
	if err := cfg.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	return &Sampler{
		cfg:    cfg,
		target: target,
	}, nil
}

// Run starts every chain and returns the shared record stream. At most
// MaxParallel chains run at once; the rest queue until a worker frees up.
// The channel closes once every chain has stopped. Call Wait afterward for
// the per-chain error report. Run may be called only once.
func (s *Sampler) Run(ctx context.Context) (<-chan SampleRecord, error) {
	if s.started {
		return nil, errors.Errorf("Sampler.Run may only be called once")
	}
	s.started = true

	s.records = make(chan SampleRecord, s.cfg.ResultBuffer)
	s.errs = make([]error, s.cfg.Chains)
	s.done = make(chan struct{})

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallel)

	go func() {
		defer close(s.done)
		defer close(s.records)

		for i := 0; i < s.cfg.Chains; i++ {
			i := i
			g.Go(func() error {
				// A failing chain records its error and lets the
				// other chains keep running
				ch, err := NewChain(s.cfg, s.target, i)
				if err != nil {
					s.errs[i] = err
					return nil
				}
				s.errs[i] = ch.Run(ctx, s.records)
				return nil
			})
		}
		g.Wait()
	}()

	return s.records, nil
}

// Wait blocks until every chain has stopped and reports chain failures. A
// nil return means every chain produced its full set of draws.
func (s *Sampler) Wait() error {
	<-s.done

	failed := 0
	var first error
	for i, err := range s.errs {
		if err != nil {
			failed++
			if first == nil {
				first = errors.Wrapf(err, "Chain %d failed", i)
			}
		}
	}

	if failed == 0 {
		return nil
	}
	if failed == 1 {
		return first
	}
	return errors.Wrapf(first, "%d chains failed - first failure", failed)
}

// ChainErrors returns the per-chain error slots. Only valid after Wait has
// returned.
func (s *Sampler) ChainErrors() []error {
	return s.errs
}

// SampleAll runs every chain to completion and gathers the stream into
// per-chain record slices (warm-up draws included, flagged on the record).
func (s *Sampler) SampleAll(ctx context.Context) ([][]SampleRecord, error) {
	records, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]SampleRecord, s.cfg.Chains)
	for rec := range records {
		out[rec.Chain] = append(out[rec.Chain], rec)
	}
	return out, s.Wait()
}

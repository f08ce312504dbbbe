package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tmcnab/nutshell/model"
	"github.com/tmcnab/nutshell/sampler"
)

// buildTarget maps the --target flag to one of the built-in demo densities.
func buildTarget(sp *startupParams) (model.Target, error) {
	switch sp.targetName {
	case "normal":
		return model.NewGaussian(sp.dim)
	case "mvnormal":
		// AR(1)-style covariance so the off-diagonal structure is worth a
		// dense metric
		cov := mat.NewSymDense(sp.dim, nil)
		for i := 0; i < sp.dim; i++ {
			for j := i; j < sp.dim; j++ {
				v := 1.0
				for k := i; k < j; k++ {
					v *= 0.7
				}
				cov.SetSym(i, j, v)
			}
		}
		return model.NewMVGaussian(cov)
	case "funnel":
		return model.NewFunnel(sp.dim)
	default:
		return nil, errors.Errorf("Unknown target %s (want normal, mvnormal, or funnel)", sp.targetName)
	}
}

// RunSampling runs the sampler against the selected demo target and prints a
// summary report of the post-warm-up draws.
func RunSampling(sp *startupParams) error {
	tgt, err := buildTarget(sp)
	if err != nil {
		return err
	}

	cfg := sampler.DefaultConfig(tgt.Dim())
	cfg.Chains = sp.chains
	cfg.WarmupDraws = sp.warmup
	cfg.SamplingDraws = sp.samples
	cfg.Seed = sp.randomSeed
	cfg.TargetAccept = sp.targetAccept
	cfg.MaxTreeDepth = sp.maxDepth
	cfg.DivergenceThreshold = sp.divThreshold
	if sp.parallel > 0 {
		cfg.MaxParallel = sp.parallel
	}
	if sp.denseMetric {
		cfg.Metric = sampler.MetricDense
	}

	sp.out.Printf("Sampling %s (dim %d)\n", sp.targetName, tgt.Dim())
	sp.out.Printf("Chains: %d (max %d at once), Warmup: %d, Samples: %d, Seed: %d\n",
		cfg.Chains, cfg.MaxParallel, cfg.WarmupDraws, cfg.SamplingDraws, cfg.Seed,
	)

	s, err := sampler.New(cfg, tgt)
	if err != nil {
		return err
	}

	startTime := time.Now()
	records, err := s.Run(context.Background())
	if err != nil {
		return err
	}

	// Post-warm-up draws per chain per dimension
	draws := make([][][]float64, cfg.Chains)
	for c := range draws {
		draws[c] = make([][]float64, tgt.Dim())
	}
	divergences := make([]int, cfg.Chains)
	maxDepthHits := make([]int, cfg.Chains)
	stepSizes := make([]float64, cfg.Chains)
	accepts := make([][]float64, cfg.Chains)
	leapfrogs := make([]int64, cfg.Chains)

	for rec := range records {
		leapfrogs[rec.Chain] += int64(rec.Leapfrogs)
		if rec.Warmup {
			continue
		}
		if rec.Diverged {
			divergences[rec.Chain]++
			if sp.verbose {
				sp.out.Printf("Divergence: chain %d draw %d, energy error %.2f\n",
					rec.Chain, rec.Draw, rec.Divergence.EnergyError,
				)
			}
		}
		if rec.MaxDepth {
			maxDepthHits[rec.Chain]++
		}
		for d, x := range rec.Position {
			draws[rec.Chain][d] = append(draws[rec.Chain][d], x)
		}
		stepSizes[rec.Chain] = rec.StepSize
		accepts[rec.Chain] = append(accepts[rec.Chain], rec.AcceptStat)
	}

	if err := s.Wait(); err != nil {
		return errors.Wrap(err, "Sampling failed")
	}

	runTime := time.Since(startTime).Seconds()

	sp.out.Printf("--------------------------------------------------\n")
	for c := 0; c < cfg.Chains; c++ {
		sp.out.Printf(
			"Chain %2d | step %8.5f accept %5.3f leapfrogs %8d diverged %4d maxdepth %4d\n",
			c, stepSizes[c], stat.Mean(accepts[c], nil), leapfrogs[c],
			divergences[c], maxDepthHits[c],
		)
	}

	sp.out.Printf("--------------------------------------------------\n")
	for d := 0; d < tgt.Dim(); d++ {
		pooled := make([]float64, 0, cfg.Chains*cfg.SamplingDraws)
		for c := 0; c < cfg.Chains; c++ {
			pooled = append(pooled, draws[c][d]...)
		}
		sp.out.Printf(
			"Dim %3d | mean %9.5f var %9.5f (%d draws)\n",
			d, stat.Mean(pooled, nil), stat.Variance(pooled, nil), len(pooled),
		)
	}

	totalDiv := 0
	for _, n := range divergences {
		totalDiv += n
	}
	sp.out.Printf("--------------------------------------------------\n")
	sp.out.Printf("Total divergences: %d\n", totalDiv)
	if totalDiv > 0 {
		sp.out.Printf("Divergent transitions usually mean the step size is too large for\n")
		sp.out.Printf("some region of the target; try a higher --accept\n")
	}
	sp.out.Printf("Run time: %.2f sec\n", runTime)

	return nil
}

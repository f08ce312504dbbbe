package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// startupParams holds the flag values and loggers shared by the commands.
type startupParams struct {
	out *log.Logger

	targetName string
	dim        int
	chains     int
	warmup     int
	samples    int
	randomSeed int64
	parallel   int

	denseMetric  bool
	targetAccept float64
	maxDepth     int
	divThreshold float64
	verbose      bool
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nutshell",
	Short: "Adaptive No-U-Turn (NUTS) sampling for continuous densities",
	Long: `nutshell draws samples from an unnormalized log density using adaptive
Hamiltonian Monte Carlo with the No-U-Turn extension. Step size and mass
matrix tune themselves during warm-up; chains run in parallel and stream
their draws.

Built-in demo targets:

  - normal    independent standard normal
  - mvnormal  correlated Gaussian (try with --dense)
  - funnel    Neal's funnel (expect divergences)
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunSampling(params)
	},
}

var params = &startupParams{}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	params.out = log.New(os.Stdout, "", 0)

	rootCmd.PersistentFlags().StringVarP(&params.targetName, "target", "t", "normal", "Demo target to sample (normal|mvnormal|funnel)")
	rootCmd.PersistentFlags().IntVarP(&params.dim, "dim", "d", 4, "Target dimension")
	rootCmd.PersistentFlags().IntVarP(&params.chains, "chains", "c", 4, "Number of independent chains")
	rootCmd.PersistentFlags().IntVarP(&params.warmup, "warmup", "w", 1000, "Warm-up (adaptation) draws per chain")
	rootCmd.PersistentFlags().IntVarP(&params.samples, "samples", "n", 1000, "Sampling draws per chain")
	rootCmd.PersistentFlags().Int64VarP(&params.randomSeed, "seed", "r", 1, "Random seed to use")
	rootCmd.PersistentFlags().IntVarP(&params.parallel, "parallel", "p", 0, "Max chains running at once (0 = all cores)")

	rootCmd.PersistentFlags().BoolVar(&params.denseMetric, "dense", false, "Estimate a dense mass matrix instead of diagonal")
	rootCmd.PersistentFlags().Float64Var(&params.targetAccept, "accept", 0.8, "Target acceptance statistic")
	rootCmd.PersistentFlags().IntVar(&params.maxDepth, "max-depth", 10, "Max trajectory doubling depth")
	rootCmd.PersistentFlags().Float64Var(&params.divThreshold, "div-threshold", 1000, "Energy error treated as a divergence")
	rootCmd.PersistentFlags().BoolVarP(&params.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

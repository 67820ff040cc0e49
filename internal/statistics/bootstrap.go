package statistics

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ConfidenceInterval is a bootstrap interval for the mean θ* of a batch.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// BootstrapCI computes a percentile bootstrap confidence interval for the mean
// of values. confidenceLevel should be in (0, 1), e.g. 0.95.
// Returns a degenerate interval at the mean when fewer than 2 values exist.
func BootstrapCI(values []float64, confidenceLevel float64) ConfidenceInterval {
	return BootstrapCIWithSeed(values, confidenceLevel, -1)
}

// BootstrapCIWithSeed is like BootstrapCI but accepts a seed for reproducibility.
// A negative seed uses a non-deterministic source.
func BootstrapCIWithSeed(values []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	ci := ConfidenceInterval{
		Mean:            Mean(values),
		ConfidenceLevel: confidenceLevel,
	}
	n := len(values)
	if n < 2 {
		ci.Lower, ci.Upper = ci.Mean, ci.Mean
		return ci
	}

	var rng *rand.Rand
	if seed >= 0 {
		rng = rand.New(rand.NewPCG(uint64(seed), 0))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	means := make([]float64, DefaultBootstrapIterations)
	sample := make([]float64, n)
	for i := range means {
		for j := range sample {
			sample[j] = values[rng.IntN(n)]
		}
		means[i] = stat.Mean(sample, nil)
	}
	sort.Float64s(means)

	alpha := 1 - confidenceLevel
	ci.Lower = stat.Quantile(alpha/2, stat.Empirical, means, nil)
	ci.Upper = stat.Quantile(1-alpha/2, stat.Empirical, means, nil)
	ci.NumBootstraps = len(means)
	return ci
}

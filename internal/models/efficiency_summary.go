package models

import "github.com/spboyer/dea/internal/statistics"

// Summary aggregates θ* across the records of an outcome.
type Summary struct {
	Evaluated      int     `json:"evaluated"`
	Efficient      int     `json:"efficient"`
	Inefficient    int     `json:"inefficient"`
	Skipped        int     `json:"skipped"`
	MeanEfficiency float64 `json:"mean_efficiency"`
	MinEfficiency  float64 `json:"min_efficiency"`
	MaxEfficiency  float64 `json:"max_efficiency"`
	StdDev         float64 `json:"std_dev"`

	// Bootstrap confidence interval over θ* (populated on request)
	BootstrapCI *statistics.ConfidenceInterval `json:"bootstrap_ci,omitempty"`
}

// Summarize computes the efficiency summary for the outcome and stores it on
// o.Summary. When confidenceLevel is in (0, 1) a bootstrap interval for the
// mean θ* is included; seed < 0 uses a non-deterministic source.
func (o *Outcome) Summarize(confidenceLevel float64, seed int64) *Summary {
	scores := make([]float64, 0, len(o.Records))
	s := &Summary{Skipped: len(o.Warnings)}
	for i := range o.Records {
		r := &o.Records[i]
		scores = append(scores, r.RawEfficiency)
		if r.IsEfficient() {
			s.Efficient++
		}
	}
	s.Evaluated = len(scores)
	s.Inefficient = s.Evaluated - s.Efficient
	s.MeanEfficiency = statistics.Mean(scores)
	s.MinEfficiency, s.MaxEfficiency = statistics.MinMax(scores)
	s.StdDev = statistics.StdDev(scores)

	if confidenceLevel > 0 && confidenceLevel < 1 {
		ci := statistics.BootstrapCIWithSeed(scores, confidenceLevel, seed)
		s.BootstrapCI = &ci
	}

	o.Summary = s
	return s
}

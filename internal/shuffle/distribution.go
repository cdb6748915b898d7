package shuffle

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var nan = math.NaN()

// Distribution is an immutable, sorted set of shuffle statistics. NaN
// observations (undecodable shuffles) are kept out of the sorted values but
// still counted by Len.
type Distribution struct {
	sorted []float64
	total  int
}

// NewDistribution copies and sorts values
func NewDistribution(values []float64) Distribution {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	return Distribution{sorted: sorted, total: len(values)}
}

// Len returns the number of shuffles, NaN ones included
func (d Distribution) Len() int {
	return d.total
}

// Valid returns the number of non-NaN observations
func (d Distribution) Valid() int {
	return len(d.sorted)
}

// Values returns a copy of the sorted non-NaN observations
func (d Distribution) Values() []float64 {
	return append([]float64(nil), d.sorted...)
}

// Percentile returns the percentile rank of v in d
func (d Distribution) Percentile(v float64) float64 {
	if len(d.sorted) == 0 || math.IsNaN(v) {
		return nan
	}
	return 100 * stat.CDF(v, stat.Empirical, d.sorted, nil)
}

// PercentileRank is the percentage of non-NaN shuffle values <= v. It is NaN
// when v is NaN or no shuffle produced a value.
func PercentileRank(v float64, dist Distribution) float64 {
	return dist.Percentile(v)
}

// Significant reports whether a percentile rank reaches thresh
func Significant(rank, thresh float64) bool {
	return !math.IsNaN(rank) && rank >= thresh
}

// MeanStdErr returns the mean and standard error of the non-NaN values.
// The mean is NaN with no observations and the standard error is NaN with
// fewer than two.
func MeanStdErr(values []float64) (mean, stderr float64) {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	switch len(clean) {
	case 0:
		return nan, nan
	case 1:
		return clean[0], nan
	}
	mean, std := stat.MeanStdDev(clean, nil)
	return mean, stat.StdErr(std, float64(len(clean)))
}

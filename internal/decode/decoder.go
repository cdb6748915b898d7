// Package decode reconstructs position from population spike counts with a
// memoryless Bayesian decoder that assumes independent Poisson neurons.
package decode

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/swrdecode/pkg/neuro"
)

var (
	// ErrShapeMismatch is returned when counts and tuning curves disagree on
	// the number of neurons
	ErrShapeMismatch = errors.New("decode: counts and tuning curves disagree on neuron count")

	// ErrBinSizeMismatch is returned when binsize is neither a scalar nor one
	// width per time bin
	ErrBinSizeMismatch = errors.New("decode: binsize must have length 1 or one entry per time bin")
)

// RateFloor keeps log(rate) finite for spatial bins where a neuron is silent
const RateFloor = 1e-10

// Params gates which time bins are decodable
type Params struct {
	// MinNeurons is the least number of neurons with a nonzero count
	MinNeurons int

	// MinSpikes is the least total spike count across neurons
	MinSpikes float64
}

// Posterior holds P(spatial bin | counts) with one row per time bin.
// Undecodable rows are all NaN.
type Posterior struct {
	Time []float64
	Prob *mat.Dense
}

// NumTimeBins returns the number of rows
func (p *Posterior) NumTimeBins() int {
	return len(p.Time)
}

// Decodable reports whether row t holds a probability distribution
func (p *Posterior) Decodable(t int) bool {
	return !math.IsNaN(p.Prob.At(t, 0))
}

// ZoneMass sums row t over the given spatial bins; NaN for undecodable rows
func (p *Posterior) ZoneMass(t int, bins []int) float64 {
	if !p.Decodable(t) {
		return math.NaN()
	}
	var mass float64
	for _, b := range bins {
		mass += p.Prob.At(t, b)
	}
	return mass
}

// DecodePosterior computes the posterior over spatial bins for every time
// bin. counts has one row per neuron and one column per time bin; tc is the
// neuron x spatial-bin rate matrix (TuningCurves.Flat). binsize holds either
// a single width applied to every time bin or one width per time bin.
func DecodePosterior(counts [][]float64, times []float64, tc *mat.Dense, binsize []float64, params Params) (*Posterior, error) {
	if tc.IsEmpty() {
		return nil, fmt.Errorf("%w: no tuning curves", ErrShapeMismatch)
	}
	nNeurons, nBins := tc.Dims()
	if len(counts) != nNeurons {
		return nil, fmt.Errorf("%w: %d count rows, %d tuning curves", ErrShapeMismatch, len(counts), nNeurons)
	}
	nTime := len(times)
	for i, row := range counts {
		if len(row) != nTime {
			return nil, fmt.Errorf("%w: neuron %d has %d time bins, want %d", ErrShapeMismatch, i, len(row), nTime)
		}
	}
	if len(binsize) != 1 && len(binsize) != nTime {
		return nil, fmt.Errorf("%w: got %d widths for %d time bins", ErrBinSizeMismatch, len(binsize), nTime)
	}

	post := &Posterior{Time: append([]float64(nil), times...)}
	if nTime == 0 {
		post.Prob = &mat.Dense{}
		return post, nil
	}
	post.Prob = mat.NewDense(nTime, nBins, nil)

	// log f with the rate floor, and the expected-count term sum_i f[i,s]
	logRates := mat.NewDense(nNeurons, nBins, nil)
	rateSum := make([]float64, nBins)
	for i := 0; i < nNeurons; i++ {
		for s := 0; s < nBins; s++ {
			f := math.Max(tc.At(i, s), RateFloor)
			logRates.Set(i, s, math.Log(f))
			rateSum[s] += f
		}
	}

	countMat := mat.NewDense(nTime, nNeurons, nil)
	for i, row := range counts {
		countMat.SetCol(i, row)
	}

	// log P(s | n_t) = sum_i n_t[i] log f[i,s] - width_t * sum_i f[i,s] + const
	post.Prob.Mul(countMat, logRates)

	row := make([]float64, nBins)
	for t := 0; t < nTime; t++ {
		if !decodable(countMat.RawRowView(t), params) {
			for s := range row {
				row[s] = math.NaN()
			}
			post.Prob.SetRow(t, row)
			continue
		}

		width := binsize[0]
		if len(binsize) > 1 {
			width = binsize[t]
		}
		mat.Row(row, t, post.Prob)
		floats.AddScaled(row, -width, rateSum)
		floats.AddConst(-floats.LogSumExp(row), row)
		for s, v := range row {
			row[s] = math.Exp(v)
		}
		post.Prob.SetRow(t, row)
	}
	return post, nil
}

func decodable(counts []float64, params Params) bool {
	active := 0
	var total float64
	for _, c := range counts {
		if c > 0 {
			active++
		}
		total += c
	}
	return active >= params.MinNeurons && total >= params.MinSpikes
}

// undecodablePosterior is the all-NaN result for a model with no neurons
func undecodablePosterior(times []float64, nBins int) *Posterior {
	post := &Posterior{Time: append([]float64(nil), times...), Prob: &mat.Dense{}}
	if len(times) == 0 {
		return post
	}
	data := make([]float64, len(times)*nBins)
	for i := range data {
		data[i] = math.NaN()
	}
	post.Prob = mat.NewDense(len(times), nBins, data)
	return post
}

// DecodeLocation maps each decodable row to the center of its most probable
// spatial bin. Ties go to the lowest bin index; undecodable rows become
// (NaN, NaN) and are left in place for the caller to drop.
func DecodeLocation(post *Posterior, tc *TuningCurves) neuro.Position {
	n := post.NumTimeBins()
	pos := neuro.Position{
		Time: append([]float64(nil), post.Time...),
		X:    make([]float64, n),
		Y:    make([]float64, n),
	}
	for t := 0; t < n; t++ {
		row := post.Prob.RawRowView(t)
		if floats.HasNaN(row) {
			pos.X[t], pos.Y[t] = math.NaN(), math.NaN()
			continue
		}
		pos.X[t], pos.Y[t] = tc.BinCenter(floats.MaxIdx(row))
	}
	return pos
}

// Decode runs the posterior, picks the best location per bin and drops the
// undecodable bins
func Decode(counts neuro.AnalogSignal, tc *TuningCurves, binsize []float64, params Params) (neuro.Position, *Posterior, error) {
	if tc.NumNeurons() == 0 && counts.NumChannels() == 0 {
		post := undecodablePosterior(counts.Time, tc.NumBins())
		return DecodeLocation(post, tc).DropNaN(), post, nil
	}
	post, err := DecodePosterior(counts.Data, counts.Time, tc.Flat(), binsize, params)
	if err != nil {
		return neuro.Position{}, nil, err
	}
	return DecodeLocation(post, tc).DropNaN(), post, nil
}

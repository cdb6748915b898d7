package decode

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidTuningCurves is returned when the rate array is ragged,
// negative, non-finite or disagrees with the bin centers
var ErrInvalidTuningCurves = errors.New("decode: invalid tuning curves")

// TuningCurves is the per-neuron spatial firing rate map (Hz) built during
// the behavioral encoding pass. Spatial bins are enumerated row-major:
// bin = y*nx + x.
type TuningCurves struct {
	XCenters []float64
	YCenters []float64

	rates   []float64 // neuron-major, then y, then x
	neurons int
}

// NewTuningCurves copies rates[neuron][y][x] into a validated model
func NewTuningCurves(rates [][][]float64, xCenters, yCenters []float64) (*TuningCurves, error) {
	ny, nx := len(yCenters), len(xCenters)
	if ny == 0 || nx == 0 {
		return nil, fmt.Errorf("%w: empty spatial grid", ErrInvalidTuningCurves)
	}

	tc := &TuningCurves{
		XCenters: append([]float64(nil), xCenters...),
		YCenters: append([]float64(nil), yCenters...),
		rates:    make([]float64, 0, len(rates)*ny*nx),
		neurons:  len(rates),
	}
	for n, plane := range rates {
		if len(plane) != ny {
			return nil, fmt.Errorf("%w: neuron %d has %d rows, want %d", ErrInvalidTuningCurves, n, len(plane), ny)
		}
		for y, row := range plane {
			if len(row) != nx {
				return nil, fmt.Errorf("%w: neuron %d row %d has %d columns, want %d", ErrInvalidTuningCurves, n, y, len(row), nx)
			}
			for x, r := range row {
				if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
					return nil, fmt.Errorf("%w: neuron %d bin (%d,%d) rate %v", ErrInvalidTuningCurves, n, y, x, r)
				}
			}
			tc.rates = append(tc.rates, row...)
		}
	}
	return tc, nil
}

// NumNeurons returns the length of the neuron axis
func (tc *TuningCurves) NumNeurons() int {
	return tc.neurons
}

// NumBins returns the number of spatial bins (ny*nx)
func (tc *TuningCurves) NumBins() int {
	return len(tc.XCenters) * len(tc.YCenters)
}

// Rate returns the rate of neuron n at spatial bin (y, x)
func (tc *TuningCurves) Rate(n, y, x int) float64 {
	return tc.rates[n*tc.NumBins()+y*len(tc.XCenters)+x]
}

// BinCenter maps a flat spatial bin index to its (x, y) center
func (tc *TuningCurves) BinCenter(idx int) (float64, float64) {
	nx := len(tc.XCenters)
	return tc.XCenters[idx%nx], tc.YCenters[idx/nx]
}

// Flat returns the neuron x spatial-bin rate matrix. The matrix does not
// share storage with the model.
func (tc *TuningCurves) Flat() *mat.Dense {
	if tc.neurons == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(tc.neurons, tc.NumBins(), append([]float64(nil), tc.rates...))
}

// Permute returns a model whose row i is this model's row perm[i]. Spike
// counts are untouched; only the map paired with each neuron changes.
func (tc *TuningCurves) Permute(perm []int) (*TuningCurves, error) {
	if len(perm) != tc.neurons {
		return nil, fmt.Errorf("%w: permutation of length %d for %d neurons", ErrShapeMismatch, len(perm), tc.neurons)
	}
	nb := tc.NumBins()
	out := &TuningCurves{
		XCenters: tc.XCenters,
		YCenters: tc.YCenters,
		rates:    make([]float64, len(tc.rates)),
		neurons:  tc.neurons,
	}
	seen := make([]bool, tc.neurons)
	for i, src := range perm {
		if src < 0 || src >= tc.neurons || seen[src] {
			return nil, fmt.Errorf("%w: %v is not a permutation", ErrShapeMismatch, perm)
		}
		seen[src] = true
		copy(out.rates[i*nb:(i+1)*nb], tc.rates[src*nb:(src+1)*nb])
	}
	return out, nil
}

// Rates returns a copy of the rates as [neuron][y][x]
func (tc *TuningCurves) Rates() [][][]float64 {
	ny, nx := len(tc.YCenters), len(tc.XCenters)
	out := make([][][]float64, tc.neurons)
	for n := range out {
		out[n] = make([][]float64, ny)
		for y := range out[n] {
			start := n*ny*nx + y*nx
			out[n][y] = append([]float64(nil), tc.rates[start:start+nx]...)
		}
	}
	return out
}

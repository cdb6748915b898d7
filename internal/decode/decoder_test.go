package decode

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/swrdecode/pkg/neuro"
)

// uniformModel is 4 neurons firing 5 Hz everywhere on a 2x2 grid
func uniformModel(t *testing.T) *TuningCurves {
	t.Helper()
	rates := make([][][]float64, 4)
	for n := range rates {
		rates[n] = [][]float64{{5, 5}, {5, 5}}
	}
	tc, err := NewTuningCurves(rates, []float64{0.5, 1.5}, []float64{0.5, 1.5})
	if err != nil {
		t.Fatal(err)
	}
	return tc
}

// placeModel has neuron n firing 20 Hz in bin n and 0.5 Hz elsewhere on a 2x2 grid
func placeModel(t *testing.T) *TuningCurves {
	t.Helper()
	rates := make([][][]float64, 4)
	for n := range rates {
		rates[n] = [][]float64{{0.5, 0.5}, {0.5, 0.5}}
		rates[n][n/2][n%2] = 20
	}
	tc, err := NewTuningCurves(rates, []float64{10, 30}, []float64{5, 15})
	if err != nil {
		t.Fatal(err)
	}
	return tc
}

func TestUniformFiringGivesUniformPosterior(t *testing.T) {
	tc := uniformModel(t)
	counts := [][]float64{
		{1, 0, 2, 0},
		{1, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	times := []float64{0, 0.025, 0.05, 0.075}

	post, err := DecodePosterior(counts, times, tc.Flat(), []float64{0.025}, Params{MinNeurons: 2, MinSpikes: 1})
	if err != nil {
		t.Fatal(err)
	}

	for tb, want := range []bool{true, false, true, false} {
		if post.Decodable(tb) != want {
			t.Errorf("bin %d: decodable=%v, want %v", tb, post.Decodable(tb), want)
			continue
		}
		if !want {
			continue
		}
		for s := 0; s < 4; s++ {
			if p := post.Prob.At(tb, s); math.Abs(p-0.25) > 1e-6 {
				t.Errorf("bin %d spatial %d: expected 0.25, got %.8f", tb, s, p)
			}
		}
	}
}

func TestPosteriorRowsSumToOne(t *testing.T) {
	tc := placeModel(t)
	counts := [][]float64{
		{3, 0, 0, 1, 0},
		{0, 2, 0, 1, 0},
		{1, 0, 4, 1, 0},
		{0, 0, 1, 1, 0},
	}
	times := []float64{0, 1, 2, 3, 4}

	post, err := DecodePosterior(counts, times, tc.Flat(), []float64{0.02}, Params{MinNeurons: 1, MinSpikes: 1})
	if err != nil {
		t.Fatal(err)
	}
	for tb := 0; tb < post.NumTimeBins(); tb++ {
		row := mat.Row(nil, tb, post.Prob)
		if !post.Decodable(tb) {
			for s, v := range row {
				if !math.IsNaN(v) {
					t.Errorf("undecodable bin %d spatial %d: expected NaN, got %v", tb, s, v)
				}
			}
			continue
		}
		if sum := floats.Sum(row); math.Abs(sum-1) > 1e-9 {
			t.Errorf("bin %d: posterior sums to %.12f", tb, sum)
		}
	}
	if post.Decodable(4) {
		t.Error("silent bin must be undecodable")
	}
}

func TestDecodeLocationPicksActiveField(t *testing.T) {
	tc := placeModel(t)
	// each time bin is dominated by one neuron
	counts := [][]float64{
		{5, 0, 0, 0},
		{0, 5, 0, 0},
		{0, 0, 5, 0},
		{0, 0, 0, 5},
	}
	times := []float64{0, 0.1, 0.2, 0.3}
	post, err := DecodePosterior(counts, times, tc.Flat(), []float64{0.1}, Params{MinNeurons: 1, MinSpikes: 1})
	if err != nil {
		t.Fatal(err)
	}

	pos := DecodeLocation(post, tc)
	wantX := []float64{10, 30, 10, 30}
	wantY := []float64{5, 5, 15, 15}
	if !floats.Equal(pos.X, wantX) || !floats.Equal(pos.Y, wantY) {
		t.Errorf("expected x=%v y=%v, got x=%v y=%v", wantX, wantY, pos.X, pos.Y)
	}
}

func TestDecodeLocationTiesAndNaN(t *testing.T) {
	tc := uniformModel(t)
	post := &Posterior{
		Time: []float64{0, 1},
		Prob: mat.NewDense(2, 4, []float64{
			0.25, 0.25, 0.25, 0.25,
			math.NaN(), math.NaN(), math.NaN(), math.NaN(),
		}),
	}
	pos := DecodeLocation(post, tc)
	if pos.X[0] != 0.5 || pos.Y[0] != 0.5 {
		t.Errorf("tie should resolve to bin 0, got (%v, %v)", pos.X[0], pos.Y[0])
	}
	if !math.IsNaN(pos.X[1]) || !math.IsNaN(pos.Y[1]) {
		t.Errorf("undecodable bin should map to NaN, got (%v, %v)", pos.X[1], pos.Y[1])
	}
	if dropped := pos.DropNaN(); dropped.Len() != 1 {
		t.Errorf("expected 1 sample after DropNaN, got %d", dropped.Len())
	}
}

func TestGatingIsMonotonic(t *testing.T) {
	tc := placeModel(t)
	counts := [][]float64{
		{1, 1, 0, 2, 0, 1},
		{0, 1, 0, 1, 1, 1},
		{0, 1, 1, 0, 1, 1},
		{0, 0, 1, 0, 1, 1},
	}
	times := []float64{0, 1, 2, 3, 4, 5}

	var prev []bool
	for minNeurons := 0; minNeurons <= 5; minNeurons++ {
		post, err := DecodePosterior(counts, times, tc.Flat(), []float64{0.02}, Params{MinNeurons: minNeurons, MinSpikes: 1})
		if err != nil {
			t.Fatal(err)
		}
		cur := make([]bool, len(times))
		for tb := range cur {
			cur[tb] = post.Decodable(tb)
			if prev != nil && cur[tb] && !prev[tb] {
				t.Errorf("min_neurons=%d decodes bin %d that min_neurons=%d did not", minNeurons, tb, minNeurons-1)
			}
		}
		prev = cur
	}
}

func TestVariableBinSize(t *testing.T) {
	// bin 0 has a much larger summed rate than bin 1
	tc, err := NewTuningCurves([][][]float64{{{20, 1}}, {{1, 1}}}, []float64{0, 1}, []float64{0})
	if err != nil {
		t.Fatal(err)
	}
	counts := [][]float64{{1, 1}, {0, 0}}
	times := []float64{0, 1}

	post, err := DecodePosterior(counts, times, tc.Flat(), []float64{0.01, 1.0}, Params{MinNeurons: 1, MinSpikes: 1})
	if err != nil {
		t.Fatal(err)
	}
	short := post.Prob.At(0, 0)
	long := post.Prob.At(1, 0)
	// one spike in a long window is weaker evidence for the high-rate field:
	// the expected count penalty grows with the width
	if !(long < short) {
		t.Errorf("expected longer bin to reduce P(field), got short=%.4f long=%.4f", short, long)
	}
	for tb := 0; tb < 2; tb++ {
		if sum := floats.Sum(mat.Row(nil, tb, post.Prob)); math.Abs(sum-1) > 1e-9 {
			t.Errorf("bin %d sums to %.12f", tb, sum)
		}
	}
}

func TestDecodePosteriorContractErrors(t *testing.T) {
	tc := placeModel(t)
	tests := []struct {
		name    string
		counts  [][]float64
		times   []float64
		binsize []float64
		want    error
	}{
		{
			name:    "too few neurons",
			counts:  [][]float64{{1}, {1}},
			times:   []float64{0},
			binsize: []float64{0.02},
			want:    ErrShapeMismatch,
		},
		{
			name:    "ragged counts",
			counts:  [][]float64{{1}, {1}, {1, 2}, {1}},
			times:   []float64{0},
			binsize: []float64{0.02},
			want:    ErrShapeMismatch,
		},
		{
			name:    "binsize length",
			counts:  [][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
			times:   []float64{0, 1, 2},
			binsize: []float64{0.02, 0.02},
			want:    ErrBinSizeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePosterior(tt.counts, tt.times, tc.Flat(), tt.binsize, Params{})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeDropsUndecodable(t *testing.T) {
	tc := placeModel(t)
	counts := neuro.AnalogSignal{
		Time: []float64{0, 0.1, 0.2},
		Data: [][]float64{{3, 0, 0}, {0, 0, 0}, {0, 0, 3}, {0, 0, 0}},
	}
	pos, post, err := Decode(counts, tc, []float64{0.1}, Params{MinNeurons: 1, MinSpikes: 1})
	if err != nil {
		t.Fatal(err)
	}
	if post.NumTimeBins() != 3 {
		t.Fatalf("posterior should keep all bins, got %d", post.NumTimeBins())
	}
	if pos.Len() != 2 || pos.Time[0] != 0 || pos.Time[1] != 0.2 {
		t.Errorf("expected decoded times [0 0.2], got %v", pos.Time)
	}
}

func TestPermute(t *testing.T) {
	tc := placeModel(t)
	shuffled, err := tc.Permute([]int{3, 2, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if shuffled.Rate(0, 1, 1) != 20 || shuffled.Rate(3, 0, 0) != 20 {
		t.Errorf("rows not permuted: %v", shuffled.Rates())
	}
	if tc.Rate(0, 0, 0) != 20 {
		t.Error("Permute modified the source model")
	}

	if _, err := tc.Permute([]int{0, 0, 1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch for a repeated index, got %v", err)
	}
}

func TestNewTuningCurvesValidation(t *testing.T) {
	tests := []struct {
		name  string
		rates [][][]float64
	}{
		{name: "ragged rows", rates: [][][]float64{{{1, 2}, {3}}}},
		{name: "wrong row count", rates: [][][]float64{{{1, 2}}}},
		{name: "negative rate", rates: [][][]float64{{{1, -2}, {3, 4}}}},
		{name: "NaN rate", rates: [][][]float64{{{1, math.NaN()}, {3, 4}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTuningCurves(tt.rates, []float64{0, 1}, []float64{0, 1})
			if !errors.Is(err, ErrInvalidTuningCurves) {
				t.Errorf("expected ErrInvalidTuningCurves, got %v", err)
			}
		})
	}
}

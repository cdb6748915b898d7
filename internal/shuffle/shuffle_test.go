package shuffle

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chrissnell/swrdecode/internal/decode"
)

// randomModel builds nNeurons random rate maps on a 3x3 grid
func randomModel(t *testing.T, nNeurons int, seed uint64) *decode.TuningCurves {
	t.Helper()
	u := distuv.Uniform{Min: 0, Max: 20, Src: rand.NewPCG(seed, 1)}
	rates := make([][][]float64, nNeurons)
	for n := range rates {
		rates[n] = make([][]float64, 3)
		for y := range rates[n] {
			rates[n][y] = []float64{u.Rand(), u.Rand(), u.Rand()}
		}
	}
	tc, err := decode.NewTuningCurves(rates, []float64{0, 1, 2}, []float64{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	return tc
}

// flatCounts draws spatially unstructured Poisson counts
func flatCounts(nNeurons, nTime int, seed uint64) ([][]float64, []float64) {
	p := distuv.Poisson{Lambda: 1.5, Src: rand.NewPCG(seed, 2)}
	counts := make([][]float64, nNeurons)
	for n := range counts {
		counts[n] = make([]float64, nTime)
		for t := range counts[n] {
			counts[n][t] = p.Rand()
		}
	}
	times := make([]float64, nTime)
	for i := range times {
		times[i] = float64(i) * 0.1
	}
	return counts, times
}

// zoneMass is the mean posterior mass in spatial bins 0..2 across decodable bins
func zoneMass(counts [][]float64, times []float64) StatFunc {
	return func(ctx context.Context, _ int, tc *decode.TuningCurves) (float64, error) {
		post, err := decode.DecodePosterior(counts, times, tc.Flat(), []float64{0.1}, decode.Params{MinNeurons: 1, MinSpikes: 1})
		if err != nil {
			return 0, err
		}
		var sum float64
		var n int
		for t := 0; t < post.NumTimeBins(); t++ {
			if m := post.ZoneMass(t, []int{0, 1, 2}); !math.IsNaN(m) {
				sum += m
				n++
			}
		}
		if n == 0 {
			return math.NaN(), nil
		}
		return sum / float64(n), nil
	}
}

func TestRunIsIndependentOfWorkers(t *testing.T) {
	tc := randomModel(t, 6, 7)
	counts, times := flatCounts(6, 30, 8)
	fn := zoneMass(counts, times)

	var first []float64
	for _, workers := range []int{1, 3, 8} {
		e := Engine{NumShuffles: 50, Workers: workers, Seed: 42}
		dist, err := e.Run(context.Background(), tc, fn)
		if err != nil {
			t.Fatal(err)
		}
		if dist.Len() != 50 {
			t.Fatalf("expected 50 shuffles, got %d", dist.Len())
		}
		if first == nil {
			first = dist.Values()
			continue
		}
		if !floats.Equal(first, dist.Values()) {
			t.Errorf("workers=%d produced a different distribution", workers)
		}
	}
}

func TestPermutationIsSeeded(t *testing.T) {
	a := Engine{Seed: 1}
	b := Engine{Seed: 2}

	if p, q := a.Permutation(3, 10), a.Permutation(3, 10); !equalInts(p, q) {
		t.Errorf("same seed and iteration gave %v and %v", p, q)
	}
	differ := false
	for i := 0; i < 5; i++ {
		if !equalInts(a.Permutation(i, 10), b.Permutation(i, 10)) {
			differ = true
		}
	}
	if !differ {
		t.Error("different seeds produced identical permutations")
	}
}

func TestRunMultiSharesPermutations(t *testing.T) {
	tc := randomModel(t, 5, 3)
	counts, times := flatCounts(5, 20, 4)
	single := zoneMass(counts, times)

	e := Engine{NumShuffles: 20, Workers: 4, Seed: 9}
	keys := []string{"zone", "double", "missing"}
	dists, err := e.RunMulti(context.Background(), tc, keys, func(ctx context.Context, i int, tc *decode.TuningCurves) (map[string]float64, error) {
		v, err := single(ctx, i, tc)
		return map[string]float64{"zone": v, "double": 2 * v}, err
	})
	if err != nil {
		t.Fatal(err)
	}
	want, err := e.Run(context.Background(), tc, single)
	if err != nil {
		t.Fatal(err)
	}

	if !floats.Equal(dists["zone"].Values(), want.Values()) {
		t.Error("RunMulti and Run disagree for the same seed")
	}
	doubled := want.Values()
	floats.Scale(2, doubled)
	if !floats.EqualApprox(dists["double"].Values(), doubled, 1e-12) {
		t.Error("keyed statistics were not computed from the same shuffles")
	}
	if m := dists["missing"]; m.Len() != 20 || m.Valid() != 0 {
		t.Errorf("missing key should hold 20 NaN observations, got len=%d valid=%d", m.Len(), m.Valid())
	}
}

func TestNullCentering(t *testing.T) {
	const trials = 40
	ranks := make([]float64, trials)
	for trial := range ranks {
		seed := uint64(100 + trial)
		tc := randomModel(t, 8, seed)
		counts, times := flatCounts(8, 25, seed)
		fn := zoneMass(counts, times)

		truth, err := fn(context.Background(), -1, tc)
		if err != nil {
			t.Fatal(err)
		}
		dist, err := Engine{NumShuffles: 99, Seed: seed}.Run(context.Background(), tc, fn)
		if err != nil {
			t.Fatal(err)
		}
		ranks[trial] = PercentileRank(truth, dist)
	}

	mean := stat.Mean(ranks, nil)
	if mean < 35 || mean > 65 {
		t.Errorf("expected null percentile ranks centered near 50, got mean %.1f (%v)", mean, ranks)
	}
}

func TestRunErrors(t *testing.T) {
	tc := randomModel(t, 4, 1)
	boom := errors.New("boom")

	_, err := Engine{NumShuffles: 10, Workers: 2}.Run(context.Background(), tc, func(ctx context.Context, _ int, tc *decode.TuningCurves) (float64, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected the statistic error, got %v", err)
	}

	if _, err := (Engine{}).Run(context.Background(), tc, nil); !errors.Is(err, ErrNoShuffles) {
		t.Errorf("expected ErrNoShuffles, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Engine{NumShuffles: 10}.Run(ctx, tc, func(ctx context.Context, _ int, tc *decode.TuningCurves) (float64, error) {
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPercentileRank(t *testing.T) {
	dist := NewDistribution([]float64{4, 1, 3, 2})
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{name: "below all", value: 0, want: 0},
		{name: "ties count as at or below", value: 2, want: 50},
		{name: "between", value: 2.5, want: 50},
		{name: "max", value: 4, want: 100},
		{name: "above all", value: 10, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentileRank(tt.value, dist); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.1f, got %.4f", tt.want, got)
			}
		})
	}

	if got := PercentileRank(math.NaN(), dist); !math.IsNaN(got) {
		t.Errorf("NaN value should rank NaN, got %v", got)
	}
	if got := PercentileRank(1, NewDistribution(nil)); !math.IsNaN(got) {
		t.Errorf("empty distribution should rank NaN, got %v", got)
	}

	withNaN := NewDistribution([]float64{1, math.NaN(), 3})
	if withNaN.Len() != 3 || withNaN.Valid() != 2 {
		t.Errorf("expected len 3 valid 2, got %d %d", withNaN.Len(), withNaN.Valid())
	}
	if got := PercentileRank(1, withNaN); got != 50 {
		t.Errorf("NaN shuffles must be ignored in the rank, got %v", got)
	}

	if !Significant(95, 95) || Significant(94.9, 95) || Significant(math.NaN(), 95) {
		t.Error("unexpected significance decision")
	}
}

func TestMeanStdErr(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		wantMean   float64
		wantStdErr float64
	}{
		{name: "empty", values: nil, wantMean: math.NaN(), wantStdErr: math.NaN()},
		{name: "single", values: []float64{2}, wantMean: 2, wantStdErr: math.NaN()},
		{name: "only NaN", values: []float64{math.NaN(), math.NaN()}, wantMean: math.NaN(), wantStdErr: math.NaN()},
		{name: "pair", values: []float64{1, 3}, wantMean: 2, wantStdErr: 1},
		{name: "NaN skipped", values: []float64{1, math.NaN(), 3}, wantMean: 2, wantStdErr: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, se := MeanStdErr(tt.values)
			if !sameFloat(mean, tt.wantMean) || !sameFloat(se, tt.wantStdErr) {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.wantMean, tt.wantStdErr, mean, se)
			}
		})
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-12
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

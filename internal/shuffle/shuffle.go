// Package shuffle builds null distributions by permuting which tuning curve
// is paired with which neuron and re-running a decode statistic.
package shuffle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/swrdecode/internal/decode"
)

// ErrNoShuffles is returned when NumShuffles is not positive
var ErrNoShuffles = errors.New("shuffle: number of shuffles must be positive")

// StatFunc computes one summary statistic from the shuffled model of an
// iteration. The iteration index lets callers cache per-shuffle results.
type StatFunc func(ctx context.Context, iteration int, tc *decode.TuningCurves) (float64, error)

// MultiStatFunc computes one statistic per key from a single decode
type MultiStatFunc func(ctx context.Context, iteration int, tc *decode.TuningCurves) (map[string]float64, error)

// Engine runs shuffle iterations. Iteration i always draws the same
// permutation for a given Seed, whatever the worker count or scheduling.
type Engine struct {
	NumShuffles int
	Workers     int
	Seed        uint64
}

// Permutation returns the neuron permutation used by iteration i
func (e Engine) Permutation(i, nNeurons int) []int {
	rng := rand.New(rand.NewPCG(e.Seed, uint64(i)))
	return rng.Perm(nNeurons)
}

func (e Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// each runs fn for every iteration with its shuffled model. fn must only
// write to state owned by iteration i.
func (e Engine) each(ctx context.Context, tc *decode.TuningCurves, fn func(ctx context.Context, i int, shuffled *decode.TuningCurves) error) error {
	if e.NumShuffles <= 0 {
		return ErrNoShuffles
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i := 0; i < e.NumShuffles; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			shuffled, err := tc.Permute(e.Permutation(i, tc.NumNeurons()))
			if err != nil {
				return err
			}
			if err := fn(gctx, i, shuffled); err != nil {
				return fmt.Errorf("shuffle %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Run returns the distribution of fn over NumShuffles permuted models
func (e Engine) Run(ctx context.Context, tc *decode.TuningCurves, fn StatFunc) (Distribution, error) {
	if e.NumShuffles <= 0 {
		return Distribution{}, ErrNoShuffles
	}
	values := make([]float64, e.NumShuffles)
	err := e.each(ctx, tc, func(ctx context.Context, i int, shuffled *decode.TuningCurves) error {
		v, err := fn(ctx, i, shuffled)
		values[i] = v
		return err
	})
	if err != nil {
		return Distribution{}, err
	}
	return NewDistribution(values), nil
}

// RunMulti is Run for a statistic with several keyed outputs. Every key in
// keys gets a distribution; a key missing from an iteration's result counts
// as NaN for that iteration.
func (e Engine) RunMulti(ctx context.Context, tc *decode.TuningCurves, keys []string, fn MultiStatFunc) (map[string]Distribution, error) {
	if e.NumShuffles <= 0 {
		return nil, ErrNoShuffles
	}
	values := make([][]float64, len(keys))
	for k := range values {
		values[k] = make([]float64, e.NumShuffles)
	}
	err := e.each(ctx, tc, func(ctx context.Context, i int, shuffled *decode.TuningCurves) error {
		out, err := fn(ctx, i, shuffled)
		if err != nil {
			return err
		}
		for k, key := range keys {
			v, ok := out[key]
			if !ok {
				v = nan
			}
			values[k][i] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dists := make(map[string]Distribution, len(keys))
	for k, key := range keys {
		dists[key] = NewDistribution(values[k])
	}
	return dists, nil
}

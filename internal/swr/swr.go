// Package swr detects sharp-wave ripple events in a local field potential
// and filters them by population involvement and behavioral state.
package swr

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/swrdecode/pkg/neuro"
)

var (
	// ErrInvalidParams is returned for a malformed frequency band, sample
	// rate or threshold
	ErrInvalidParams = errors.New("swr: invalid detection parameters")

	// ErrEmptyBaseline is returned when the z-score window holds no samples
	ErrEmptyBaseline = errors.New("swr: z-score window contains no samples")
)

// Params configures ripple detection
type Params struct {
	// FreqBand is the ripple band in Hz
	FreqBand [2]float64

	// ZThresh is the z-scored envelope level that bounds a candidate
	ZThresh float64

	// PowerThresh is the peak z a candidate must reach to be kept
	PowerThresh float64

	// MergeThresh joins candidates separated by less than this many seconds
	MergeThresh float64

	// MinLength drops events shorter than this many seconds
	MinLength float64
}

// DefaultParams returns the usual ripple settings
func DefaultParams() Params {
	return Params{
		FreqBand:    [2]float64{140, 250},
		ZThresh:     3,
		PowerThresh: 5,
		MergeThresh: 0.02,
		MinLength:   0.01,
	}
}

// Validate checks the band ordering and threshold ranges
func (p Params) Validate() error {
	if !(p.FreqBand[0] > 0 && p.FreqBand[1] > p.FreqBand[0]) {
		return fmt.Errorf("%w: frequency band %v", ErrInvalidParams, p.FreqBand)
	}
	if math.IsNaN(p.ZThresh) || math.IsNaN(p.PowerThresh) {
		return fmt.Errorf("%w: NaN threshold", ErrInvalidParams)
	}
	if p.MergeThresh < 0 || p.MinLength < 0 {
		return fmt.Errorf("%w: merge_thresh=%v min_length=%v", ErrInvalidParams, p.MergeThresh, p.MinLength)
	}
	return nil
}

// Detect finds ripple events in a single-channel LFP sampled at fs. The
// envelope is z-scored against all samples, or only those inside timesForZ
// when it is non-nil. No detected events is an empty Epoch, not an error.
func Detect(lfp neuro.AnalogSignal, fs float64, p Params, timesForZ *neuro.Epoch) (neuro.Epoch, error) {
	if err := p.Validate(); err != nil {
		return neuro.Epoch{}, err
	}
	if lfp.NumChannels() != 1 {
		return neuro.Epoch{}, fmt.Errorf("%w: LFP must have exactly one channel, got %d", neuro.ErrShape, lfp.NumChannels())
	}

	env, err := BandEnvelope(lfp.Channel(0), fs, p.FreqBand[0], p.FreqBand[1])
	if err != nil {
		return neuro.Epoch{}, err
	}
	z, err := zscore(env, lfp.Time, timesForZ)
	if err != nil {
		return neuro.Epoch{}, err
	}

	candidates := threshold(z, lfp.Time, p.ZThresh, p.PowerThresh)
	return candidates.Merge(p.MergeThresh).FilterDuration(p.MinLength, 0), nil
}

func zscore(env, times []float64, within *neuro.Epoch) ([]float64, error) {
	baseline := env
	if within != nil {
		baseline = make([]float64, 0, len(env))
		for i, t := range times {
			if within.Contains(t) {
				baseline = append(baseline, env[i])
			}
		}
		if len(baseline) == 0 {
			return nil, ErrEmptyBaseline
		}
	}

	z := make([]float64, len(env))
	if len(baseline) == 0 {
		return z, nil
	}
	mean, std := stat.PopMeanStdDev(baseline, nil)
	for i, v := range env {
		// a flat baseline leaves every sample at NaN, which never crosses
		z[i] = (v - mean) / std
	}
	return z, nil
}

// threshold returns [t_first, t_last] for each run of z above zThresh whose
// peak reaches powerThresh
func threshold(z, times []float64, zThresh, powerThresh float64) neuro.Epoch {
	var starts, stops []float64
	runStart := -1
	peak := math.Inf(-1)
	for i := 0; i <= len(z); i++ {
		above := i < len(z) && z[i] > zThresh
		switch {
		case above && runStart < 0:
			runStart = i
			peak = z[i]
		case above:
			peak = math.Max(peak, z[i])
		case runStart >= 0:
			if peak >= powerThresh {
				starts = append(starts, times[runStart])
				stops = append(stops, times[i-1])
			}
			runStart = -1
		}
	}
	e, _ := neuro.NewEpoch(starts, stops)
	return e
}

// FindMultiInEpochs keeps the epochs in which at least minInvolved distinct
// neurons fire one or more spikes
func FindMultiInEpochs(trains []neuro.SpikeTrain, epochs neuro.Epoch, minInvolved int) neuro.Epoch {
	var keep []int
	for i := range epochs.Starts {
		involved := 0
		for _, st := range trains {
			if st.CountIn(epochs.Starts[i], epochs.Stops[i]) > 0 {
				involved++
			}
		}
		if involved >= minInvolved {
			keep = append(keep, i)
		}
	}
	return epochs.Select(keep)
}

// Restrict limits events to rest periods within a task phase and drops the
// pieces shorter than minDuration
func Restrict(swrs, rest, task neuro.Epoch, minDuration float64) neuro.Epoch {
	return swrs.Intersect(rest).Intersect(task).FilterDuration(minDuration, 0)
}

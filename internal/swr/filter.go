package swr

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// transitionWidth is the raised-cosine roll-off (Hz) on each side of the band
const transitionWidth = 10.0

// BandEnvelope band-passes data to [low, high] Hz and returns the magnitude
// of its analytic signal. The filter is applied in the frequency domain with
// a real gain, so it has zero phase.
func BandEnvelope(data []float64, fs, low, high float64) ([]float64, error) {
	if fs <= 0 || math.IsNaN(fs) {
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidParams, fs)
	}
	if !(low > 0 && high > low) {
		return nil, fmt.Errorf("%w: band (%v, %v)", ErrInvalidParams, low, high)
	}
	if high >= fs/2 {
		return nil, fmt.Errorf("%w: band edge %v Hz is at or above Nyquist (%v Hz)", ErrInvalidParams, high, fs/2)
	}
	if len(data) == 0 {
		return []float64{}, nil
	}

	n := nextRegular(len(data))
	seq := make([]complex128, n)
	for i, v := range data {
		seq[i] = complex(v, 0)
	}

	fft := fourier.NewCmplxFFT(n)
	coeff := fft.Coefficients(nil, seq)
	for k := range coeff {
		coeff[k] *= complex(bandGain(math.Abs(fft.Freq(k))*fs, low, high)*analyticGain(k, n), 0)
	}
	out := fft.Sequence(nil, coeff)

	env := make([]float64, len(data))
	scale := 1 / float64(n)
	for i := range env {
		env[i] = cmplx.Abs(out[i]) * scale
	}
	return env, nil
}

// bandGain is 1 inside [low, high], 0 beyond the transition bands and a
// raised cosine in between
func bandGain(f, low, high float64) float64 {
	switch {
	case f >= low && f <= high:
		return 1
	case f < low-transitionWidth || f > high+transitionWidth:
		return 0
	case f < low:
		return 0.5 * (1 + math.Cos(math.Pi*(low-f)/transitionWidth))
	default:
		return 0.5 * (1 + math.Cos(math.Pi*(f-high)/transitionWidth))
	}
}

// analyticGain zeroes negative frequencies and doubles positive ones,
// leaving DC and (for even n) Nyquist untouched
func analyticGain(k, n int) float64 {
	switch {
	case k == 0:
		return 1
	case n%2 == 0 && k == n/2:
		return 1
	case k < (n+1)/2:
		return 2
	default:
		return 0
	}
}

// nextRegular returns the smallest 5-smooth number >= n
func nextRegular(n int) int {
	if n <= 6 {
		if n < 1 {
			return 1
		}
		return n
	}
	best := math.MaxInt
	for p5 := 1; p5 < best; p5 *= 5 {
		for p35 := p5; p35 < best; p35 *= 3 {
			m := p35
			for m < n {
				m *= 2
			}
			if m < best {
				best = m
			}
			if p35 >= n {
				break
			}
		}
		if p5 >= n {
			break
		}
	}
	return best
}

// Package binning turns spike timestamps into regularly sampled count
// signals, optionally smoothed with a sliding boxcar and a Gaussian kernel.
package binning

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/swrdecode/pkg/neuro"
)

var (
	// ErrNonMonotonicEdges is returned when bin edges are not strictly increasing
	ErrNonMonotonicEdges = errors.New("binning: time edges must be strictly increasing")

	// ErrInvalidBinWidth is returned for a non-positive dt or negative window
	ErrInvalidBinWidth = errors.New("binning: invalid bin width")
)

// windowTolerance is how far window/dt may sit from an integer before the
// caller is warned about the rounding
const windowTolerance = 0.01

// gaussianTruncate is the kernel half-width in standard deviations
const gaussianTruncate = 4.0

// Options controls smoothing of the binned counts
type Options struct {
	// Window is the boxcar length in seconds; zero means one bin (dt)
	Window float64

	// GaussianStd is the Gaussian smoothing std in seconds; zero disables it
	GaussianStd float64

	// Normalized divides the boxcar by its length so the output is a local
	// mean count rather than a sum
	Normalized bool
}

// DefaultOptions returns single-bin, normalized binning with no Gaussian
func DefaultOptions() Options {
	return Options{Normalized: true}
}

// Binner bins spike trains. The logger only receives the window rounding warning.
type Binner struct {
	logger *zap.SugaredLogger
}

// NewBinner creates a Binner; a nil logger silences the rounding warning
func NewBinner(logger *zap.SugaredLogger) *Binner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Binner{logger: logger}
}

// Bin computes one row per spike train aligned to edges[:len(edges)-1]
func (b *Binner) Bin(trains []neuro.SpikeTrain, edges []float64, dt float64, opts Options) (neuro.AnalogSignal, error) {
	if err := checkEdges(edges); err != nil {
		return neuro.AnalogSignal{}, err
	}
	if dt <= 0 || math.IsNaN(dt) {
		return neuro.AnalogSignal{}, fmt.Errorf("%w: dt=%v", ErrInvalidBinWidth, dt)
	}
	if opts.Window < 0 || opts.GaussianStd < 0 {
		return neuro.AnalogSignal{}, fmt.Errorf("%w: window=%v gaussian_std=%v", ErrInvalidBinWidth, opts.Window, opts.GaussianStd)
	}

	window := opts.Window
	if window == 0 {
		window = dt
	}
	nBins := b.windowBins(window, dt)

	boxcar := make([]float64, nBins)
	for i := range boxcar {
		boxcar[i] = 1
		if opts.Normalized {
			boxcar[i] = 1 / float64(nBins)
		}
	}

	var gauss []float64
	if opts.GaussianStd > 0 {
		gauss = GaussianKernel(opts.GaussianStd / dt)
	}

	out := neuro.AnalogSignal{
		Time: append([]float64(nil), edges[:len(edges)-1]...),
		Data: make([][]float64, len(trains)),
	}
	for i, st := range trains {
		row := ConvolveSame(Histogram(st.Time, edges), boxcar)
		if gauss != nil {
			row = ConvolveSame(row, gauss)
		}
		out.Data[i] = row
	}
	return out, nil
}

func (b *Binner) windowBins(window, dt float64) int {
	ratio := window / dt
	nBins := int(math.Round(ratio))
	if math.Abs(ratio-float64(nBins)) > windowTolerance {
		b.logger.Warnf("window %.6fs is not a multiple of dt %.6fs, using %d bins (%.6fs)",
			window, dt, nBins, float64(nBins)*dt)
	}
	if nBins < 1 {
		nBins = 1
	}
	return nBins
}

func checkEdges(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("%w: need at least two edges, got %d", ErrNonMonotonicEdges, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return fmt.Errorf("%w: edge %d (%.6f) <= edge %d (%.6f)", ErrNonMonotonicEdges, i, edges[i], i-1, edges[i-1])
		}
	}
	return nil
}

// Histogram counts sorted spike times into bins [edges[i], edges[i+1]).
// The last bin also includes its right edge.
func Histogram(times, edges []float64) []float64 {
	lo := sort.SearchFloat64s(times, edges[0])
	last := edges[len(edges)-1]
	hi := sort.SearchFloat64s(times, last)

	counts := stat.Histogram(nil, edges, times[lo:hi], nil)
	for i := hi; i < len(times) && times[i] == last; i++ {
		counts[len(counts)-1]++
	}
	return counts
}

// ConvolveSame is a "same" mode convolution: the output has len(data)
// samples and the kernel is centered, with zero padding at both ends
func ConvolveSame(data, kernel []float64) []float64 {
	n, m := len(data), len(kernel)
	out := make([]float64, n)
	if n == 0 || m == 0 {
		return out
	}
	offset := (m - 1) / 2
	for i := range out {
		k := i + offset // index into the full convolution
		var sum float64
		for j := 0; j < m; j++ {
			idx := k - j
			if idx < 0 || idx >= n {
				continue
			}
			sum += data[idx] * kernel[j]
		}
		out[i] = sum
	}
	return out
}

// GaussianKernel returns a unit-sum Gaussian with the given std in samples,
// truncated at four standard deviations
func GaussianKernel(std float64) []float64 {
	half := int(math.Ceil(gaussianTruncate * std))
	if half < 1 {
		return []float64{1}
	}
	kernel := make([]float64, 2*half+1)
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-0.5 * x * x / (std * std))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// EpochCounts holds raw spike counts per neuron for each interval of an
// epoch, plus the interval widths for variable-width decoding
type EpochCounts struct {
	Time   []float64
	Counts [][]float64
	Widths []float64
}

// CountInEpochs counts each train's spikes inside every interval (bounds inclusive)
func CountInEpochs(trains []neuro.SpikeTrain, epochs neuro.Epoch) EpochCounts {
	ec := EpochCounts{
		Time:   make([]float64, epochs.Len()),
		Counts: make([][]float64, len(trains)),
		Widths: epochs.Durations(),
	}
	for i := range epochs.Starts {
		ec.Time[i] = (epochs.Starts[i] + epochs.Stops[i]) / 2
	}
	for n, st := range trains {
		row := make([]float64, epochs.Len())
		for i := range epochs.Starts {
			row[i] = float64(st.CountIn(epochs.Starts[i], epochs.Stops[i]))
		}
		ec.Counts[n] = row
	}
	return ec
}

package neuro

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnsortedTimes is returned when timestamps decrease
	ErrUnsortedTimes = errors.New("neuro: timestamps are not monotonically increasing")

	// ErrShape is returned when sample rows do not match the time vector
	ErrShape = errors.New("neuro: data shape does not match time vector")
)

// SpikeTrain is the ordered spike times (seconds) of a single neuron
type SpikeTrain struct {
	Label string
	Time  []float64
}

// NewSpikeTrain copies times and rejects decreasing timestamps
func NewSpikeTrain(label string, times []float64) (SpikeTrain, error) {
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return SpikeTrain{}, fmt.Errorf("%w: spike train %q at index %d", ErrUnsortedTimes, label, i)
		}
	}
	return SpikeTrain{Label: label, Time: append([]float64(nil), times...)}, nil
}

// Len returns the number of spikes
func (s SpikeTrain) Len() int {
	return len(s.Time)
}

// TimeSlice returns the spikes with t0 <= t <= t1 as a new train
func (s SpikeTrain) TimeSlice(t0, t1 float64) SpikeTrain {
	lo := sort.SearchFloat64s(s.Time, t0)
	hi := sort.Search(len(s.Time), func(i int) bool { return s.Time[i] > t1 })
	if hi < lo {
		hi = lo
	}
	return SpikeTrain{Label: s.Label, Time: append([]float64(nil), s.Time[lo:hi]...)}
}

// CountIn returns the number of spikes with t0 <= t <= t1
func (s SpikeTrain) CountIn(t0, t1 float64) int {
	lo := sort.SearchFloat64s(s.Time, t0)
	hi := sort.Search(len(s.Time), func(i int) bool { return s.Time[i] > t1 })
	if hi < lo {
		return 0
	}
	return hi - lo
}

// AnalogSignal is a sampled signal with one row per channel and a shared
// time vector
type AnalogSignal struct {
	Time []float64
	Data [][]float64
}

// NewAnalogSignal checks that each channel has one sample per timestamp
func NewAnalogSignal(time []float64, data [][]float64) (AnalogSignal, error) {
	for i := 1; i < len(time); i++ {
		if time[i] < time[i-1] {
			return AnalogSignal{}, fmt.Errorf("%w: analog signal at index %d", ErrUnsortedTimes, i)
		}
	}
	for ch, row := range data {
		if len(row) != len(time) {
			return AnalogSignal{}, fmt.Errorf("%w: channel %d has %d samples, want %d", ErrShape, ch, len(row), len(time))
		}
	}
	return AnalogSignal{Time: time, Data: data}, nil
}

// NumChannels returns the number of rows
func (a AnalogSignal) NumChannels() int {
	return len(a.Data)
}

// NumSamples returns the number of timestamps
func (a AnalogSignal) NumSamples() int {
	return len(a.Time)
}

// Channel returns row i
func (a AnalogSignal) Channel(i int) []float64 {
	return a.Data[i]
}

// SampleRate estimates the sampling frequency from the median sample spacing
func (a AnalogSignal) SampleRate() float64 {
	if len(a.Time) < 2 {
		return 0
	}
	diffs := make([]float64, len(a.Time)-1)
	for i := range diffs {
		diffs[i] = a.Time[i+1] - a.Time[i]
	}
	sort.Float64s(diffs)
	median := diffs[len(diffs)/2]
	if median <= 0 {
		return 0
	}
	return 1 / median
}

// TimeSlice returns the samples with t0 <= t <= t1 as a new signal
func (a AnalogSignal) TimeSlice(t0, t1 float64) AnalogSignal {
	lo := sort.SearchFloat64s(a.Time, t0)
	hi := sort.Search(len(a.Time), func(i int) bool { return a.Time[i] > t1 })
	if hi < lo {
		hi = lo
	}
	out := AnalogSignal{
		Time: append([]float64(nil), a.Time[lo:hi]...),
		Data: make([][]float64, len(a.Data)),
	}
	for ch, row := range a.Data {
		out.Data[ch] = append([]float64(nil), row[lo:hi]...)
	}
	return out
}

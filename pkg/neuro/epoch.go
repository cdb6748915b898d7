// Package neuro holds the value types shared by every stage of the analysis:
// spike trains, sampled signals, epochs and position series.
package neuro

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidEpoch is returned when interval bounds are malformed
var ErrInvalidEpoch = errors.New("neuro: invalid epoch")

// Epoch is a sorted set of [start, stop] time intervals in seconds.
// Every operation returns a new Epoch; the receiver is never modified.
type Epoch struct {
	Starts []float64
	Stops  []float64
}

type interval struct {
	start, stop float64
}

// NewEpoch validates the bounds and returns an Epoch sorted by start time
func NewEpoch(starts, stops []float64) (Epoch, error) {
	if len(starts) != len(stops) {
		return Epoch{}, fmt.Errorf("%w: %d starts but %d stops", ErrInvalidEpoch, len(starts), len(stops))
	}
	ivs := make([]interval, len(starts))
	for i := range starts {
		if math.IsNaN(starts[i]) || math.IsNaN(stops[i]) {
			return Epoch{}, fmt.Errorf("%w: NaN bound at index %d", ErrInvalidEpoch, i)
		}
		if starts[i] > stops[i] {
			return Epoch{}, fmt.Errorf("%w: start %.6f > stop %.6f at index %d", ErrInvalidEpoch, starts[i], stops[i], i)
		}
		ivs[i] = interval{starts[i], stops[i]}
	}
	return fromIntervals(ivs), nil
}

// MustEpoch is NewEpoch for literal bounds known to be valid; it panics otherwise
func MustEpoch(starts, stops []float64) Epoch {
	e, err := NewEpoch(starts, stops)
	if err != nil {
		panic(err)
	}
	return e
}

func fromIntervals(ivs []interval) Epoch {
	sort.SliceStable(ivs, func(i, j int) bool {
		if ivs[i].start == ivs[j].start {
			return ivs[i].stop < ivs[j].stop
		}
		return ivs[i].start < ivs[j].start
	})
	e := Epoch{
		Starts: make([]float64, len(ivs)),
		Stops:  make([]float64, len(ivs)),
	}
	for i, iv := range ivs {
		e.Starts[i] = iv.start
		e.Stops[i] = iv.stop
	}
	return e
}

func (e Epoch) intervals() []interval {
	ivs := make([]interval, len(e.Starts))
	for i := range e.Starts {
		ivs[i] = interval{e.Starts[i], e.Stops[i]}
	}
	return ivs
}

// Len returns the number of intervals
func (e Epoch) Len() int {
	return len(e.Starts)
}

// IsEmpty reports whether the epoch has no intervals
func (e Epoch) IsEmpty() bool {
	return len(e.Starts) == 0
}

// Durations returns stop-start for every interval
func (e Epoch) Durations() []float64 {
	d := make([]float64, len(e.Starts))
	for i := range e.Starts {
		d[i] = e.Stops[i] - e.Starts[i]
	}
	return d
}

// TotalDuration is the sum of the interval durations
func (e Epoch) TotalDuration() float64 {
	var total float64
	for _, d := range e.Durations() {
		total += d
	}
	return total
}

// Contains reports whether t falls inside any interval (bounds inclusive)
func (e Epoch) Contains(t float64) bool {
	for i := range e.Starts {
		if t >= e.Starts[i] && t <= e.Stops[i] {
			return true
		}
	}
	return false
}

// Equal reports whether both epochs hold the same intervals
func (e Epoch) Equal(other Epoch) bool {
	if e.Len() != other.Len() {
		return false
	}
	for i := range e.Starts {
		if e.Starts[i] != other.Starts[i] || e.Stops[i] != other.Stops[i] {
			return false
		}
	}
	return true
}

// Intersect returns the pieces of time covered by both epochs.
// Only pieces with positive duration are kept.
func (e Epoch) Intersect(other Epoch) Epoch {
	var ivs []interval
	for i := range e.Starts {
		for j := range other.Starts {
			start := math.Max(e.Starts[i], other.Starts[j])
			stop := math.Min(e.Stops[i], other.Stops[j])
			if stop > start {
				ivs = append(ivs, interval{start, stop})
			}
		}
	}
	return fromIntervals(ivs)
}

// Overlaps keeps the intervals of e that share a nonzero duration with
// at least one interval of other
func (e Epoch) Overlaps(other Epoch) Epoch {
	var ivs []interval
	for i := range e.Starts {
		for j := range other.Starts {
			if math.Min(e.Stops[i], other.Stops[j]) > math.Max(e.Starts[i], other.Starts[j]) {
				ivs = append(ivs, interval{e.Starts[i], e.Stops[i]})
				break
			}
		}
	}
	return fromIntervals(ivs)
}

// Merge joins intervals that overlap or whose gap is strictly less than gap
func (e Epoch) Merge(gap float64) Epoch {
	if e.Len() == 0 {
		return Epoch{Starts: []float64{}, Stops: []float64{}}
	}
	ivs := fromIntervals(e.intervals()).intervals()

	merged := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.stop || iv.start-last.stop < gap {
			if iv.stop > last.stop {
				last.stop = iv.stop
			}
			continue
		}
		merged = append(merged, iv)
	}
	return fromIntervals(merged)
}

// Union combines both epochs, merging anything that overlaps
func (e Epoch) Union(other Epoch) Epoch {
	ivs := append(e.intervals(), other.intervals()...)
	return fromIntervals(ivs).Merge(0)
}

// Complement returns the parts of [start, stop] not covered by e
func (e Epoch) Complement(start, stop float64) Epoch {
	var ivs []interval
	cursor := start
	for _, iv := range e.Merge(0).intervals() {
		if iv.stop <= cursor {
			continue
		}
		if iv.start >= stop {
			break
		}
		if iv.start > cursor {
			ivs = append(ivs, interval{cursor, iv.start})
		}
		cursor = iv.stop
	}
	if cursor < stop {
		ivs = append(ivs, interval{cursor, stop})
	}
	return fromIntervals(ivs)
}

// FilterDuration keeps intervals with min <= duration <= max.
// A max of zero or less means no upper bound.
func (e Epoch) FilterDuration(min, max float64) Epoch {
	var ivs []interval
	for i := range e.Starts {
		d := e.Stops[i] - e.Starts[i]
		if d < min {
			continue
		}
		if max > 0 && d > max {
			continue
		}
		ivs = append(ivs, interval{e.Starts[i], e.Stops[i]})
	}
	return fromIntervals(ivs)
}

// Expand widens every interval by amount on both sides
func (e Epoch) Expand(amount float64) Epoch {
	ivs := e.intervals()
	for i := range ivs {
		ivs[i].start -= amount
		ivs[i].stop += amount
		if ivs[i].stop < ivs[i].start {
			mid := (ivs[i].start + ivs[i].stop) / 2
			ivs[i] = interval{mid, mid}
		}
	}
	return fromIntervals(ivs)
}

// Select returns the intervals at the given indices
func (e Epoch) Select(idx []int) Epoch {
	ivs := make([]interval, 0, len(idx))
	for _, i := range idx {
		ivs = append(ivs, interval{e.Starts[i], e.Stops[i]})
	}
	return fromIntervals(ivs)
}

// Package sequence cleans decoded trajectories: it splits them at
// physically impossible jumps and keeps only contiguous spans long enough to
// count as a replayed sequence.
package sequence

import (
	"math"

	"github.com/chrissnell/swrdecode/pkg/neuro"
)

// Params controls sequence filtering
type Params struct {
	// SpeedThresh is the largest plausible decoded speed (units/s)
	SpeedThresh float64

	// MinLength is the least number of decoded samples in a retained run
	MinLength int

	// MinEpochs is the least number of retained spans; fewer means the
	// whole call yields an empty trajectory
	MinEpochs int

	// Margin widens each retained span on both sides (seconds)
	Margin float64
}

// RemoveTeleports returns one interval [t_first, t_last] per contiguous run
// of decoded samples. A run breaks wherever the speed between consecutive
// samples exceeds speedThresh; runs shorter than minLength samples are
// discarded.
func RemoveTeleports(pos neuro.Position, speedThresh float64, minLength int) neuro.Epoch {
	var starts, stops []float64
	n := pos.Len()
	if n == 0 {
		return neuro.Epoch{}
	}

	runStart := 0
	closeRun := func(end int) {
		if end-runStart+1 >= minLength {
			starts = append(starts, pos.Time[runStart])
			stops = append(stops, pos.Time[end])
		}
	}
	for i := 1; i < n; i++ {
		if jump(pos, i) > speedThresh {
			closeRun(i - 1)
			runStart = i
		}
	}
	closeRun(n - 1)

	e, _ := neuro.NewEpoch(starts, stops)
	return e
}

// jump is the speed from sample i-1 to sample i
func jump(pos neuro.Position, i int) float64 {
	dist := math.Hypot(pos.X[i]-pos.X[i-1], pos.Y[i]-pos.Y[i-1])
	dt := pos.Time[i] - pos.Time[i-1]
	if dt <= 0 {
		if dist == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return dist / dt
}

// Filter removes teleports, restricts the spans to within (when set),
// widens them by p.Margin and re-slices pos against the result. A one-sample
// span survives the restriction when its sample lies inside within. When
// fewer than p.MinEpochs spans survive both return values are empty.
func Filter(pos neuro.Position, within *neuro.Epoch, p Params) (neuro.Position, neuro.Epoch) {
	spans := RemoveTeleports(pos, p.SpeedThresh, p.MinLength)
	if within != nil {
		spans = clip(spans, *within)
	}
	spans = spans.Expand(p.Margin)

	if spans.Len() < p.MinEpochs || spans.IsEmpty() {
		return neuro.Position{}, neuro.Epoch{}
	}
	return pos.Restrict(spans), spans
}

// clip intersects spans with within. Intersect drops zero-length pieces, so a
// one-sample span [t, t] is kept on its own when within contains t.
func clip(spans, within neuro.Epoch) neuro.Epoch {
	var starts, stops []float64
	for i := range spans.Starts {
		start, stop := spans.Starts[i], spans.Stops[i]
		if start == stop {
			if within.Contains(start) {
				starts = append(starts, start)
				stops = append(stops, stop)
			}
			continue
		}
		piece := neuro.MustEpoch([]float64{start}, []float64{stop}).Intersect(within)
		starts = append(starts, piece.Starts...)
		stops = append(stops, piece.Stops...)
	}
	return neuro.MustEpoch(starts, stops)
}

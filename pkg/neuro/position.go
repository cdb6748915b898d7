package neuro

import (
	"math"
)

// Position is a 2-D trajectory: tracked animal position or the decoded
// best estimate per time bin
type Position struct {
	Time []float64
	X    []float64
	Y    []float64
}

// Len returns the number of samples
func (p Position) Len() int {
	return len(p.Time)
}

// DropNaN removes samples whose x or y is NaN
func (p Position) DropNaN() Position {
	out := Position{
		Time: make([]float64, 0, len(p.Time)),
		X:    make([]float64, 0, len(p.Time)),
		Y:    make([]float64, 0, len(p.Time)),
	}
	for i := range p.Time {
		if math.IsNaN(p.X[i]) || math.IsNaN(p.Y[i]) {
			continue
		}
		out.Time = append(out.Time, p.Time[i])
		out.X = append(out.X, p.X[i])
		out.Y = append(out.Y, p.Y[i])
	}
	return out
}

// TimeSlice returns samples with t0 <= t <= t1
func (p Position) TimeSlice(t0, t1 float64) Position {
	return p.filter(func(t float64) bool { return t >= t0 && t <= t1 })
}

// Restrict keeps the samples that fall inside any interval of e
func (p Position) Restrict(e Epoch) Position {
	return p.filter(e.Contains)
}

func (p Position) filter(keep func(t float64) bool) Position {
	var out Position
	for i, t := range p.Time {
		if !keep(t) {
			continue
		}
		out.Time = append(out.Time, t)
		out.X = append(out.X, p.X[i])
		out.Y = append(out.Y, p.Y[i])
	}
	return out
}

// Speed returns distance/dt between consecutive samples; the first
// sample's speed is zero
func (p Position) Speed() []float64 {
	speed := make([]float64, len(p.Time))
	for i := 1; i < len(p.Time); i++ {
		dt := p.Time[i] - p.Time[i-1]
		dist := math.Hypot(p.X[i]-p.X[i-1], p.Y[i]-p.Y[i-1])
		switch {
		case dt > 0:
			speed[i] = dist / dt
		case dist == 0:
			speed[i] = 0
		default:
			speed[i] = math.Inf(1)
		}
	}
	return speed
}

// SpeedEpochs returns the periods where speed is below threshold (below=true,
// rest) or at/above it (below=false, run). Each run of qualifying samples
// becomes one interval spanning its first to last timestamp.
func SpeedEpochs(p Position, threshold float64, below bool) Epoch {
	speed := p.Speed()
	var starts, stops []float64
	inRun := false
	for i, s := range speed {
		ok := s >= threshold
		if below {
			ok = s < threshold
		}
		switch {
		case ok && !inRun:
			starts = append(starts, p.Time[i])
			inRun = true
		case !ok && inRun:
			stops = append(stops, p.Time[i-1])
			inRun = false
		}
	}
	if inRun {
		stops = append(stops, p.Time[len(p.Time)-1])
	}
	e, _ := NewEpoch(starts, stops)
	return e
}

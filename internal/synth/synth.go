// Package synth generates deterministic synthetic sessions: place cells on a
// square arena, an animal alternating between running and resting, ripple
// bursts in the LFP during rest and compressed replay of place-cell
// sequences inside each ripple.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chrissnell/swrdecode/internal/decode"
	"github.com/chrissnell/swrdecode/internal/session"
	"github.com/chrissnell/swrdecode/pkg/neuro"
)

// Config describes a synthetic session
type Config struct {
	ID   string
	Seed uint64

	Duration   float64 // seconds
	NumNeurons int
	GridX      int
	GridY      int
	ArenaSize  float64
	PeakRate   float64 // Hz at the place field center
	BaseRate   float64 // Hz everywhere
	FieldWidth float64 // place field std, arena units

	PositionRate float64 // tracking samples per second
	RunSpeed     float64 // arena units per second
	RunPeriod    float64 // seconds of running before each rest
	RestPeriod   float64 // seconds of rest

	Fs             float64 // LFP sample rate
	NoiseStd       float64
	RippleFreq     float64
	RippleAmp      float64
	RippleDuration float64
	RipplesPerRest int
	ReplayRate     float64 // Hz added to a cell while the replayed path crosses its field
}

// DefaultConfig is a small session suitable for smoke runs
func DefaultConfig() Config {
	return Config{
		ID:             "synthetic",
		Seed:           1,
		Duration:       60,
		NumNeurons:     24,
		GridX:          8,
		GridY:          8,
		ArenaSize:      100,
		PeakRate:       15,
		BaseRate:       0.5,
		FieldWidth:     12,
		PositionRate:   30,
		RunSpeed:       25,
		RunPeriod:      4,
		RestPeriod:     2,
		Fs:             2000,
		NoiseStd:       0.1,
		RippleFreq:     180,
		RippleAmp:      3,
		RippleDuration: 0.08,
		RipplesPerRest: 1,
		ReplayRate:     150,
	}
}

// Ripple is one generated ripple interval
type Ripple struct {
	Start, Stop float64
}

// Generator builds synthetic data from a Config. Every stream draws from its
// own PCG generator derived from Config.Seed so output is reproducible.
type Generator struct {
	cfg Config
}

// NewGenerator validates cfg
func NewGenerator(cfg Config) (*Generator, error) {
	switch {
	case cfg.Duration <= 0, cfg.NumNeurons <= 0, cfg.GridX <= 0, cfg.GridY <= 0:
		return nil, fmt.Errorf("synth: duration, neurons and grid must be positive")
	case cfg.Fs <= 0 || cfg.PositionRate <= 0:
		return nil, fmt.Errorf("synth: sample rates must be positive")
	case cfg.RippleFreq >= cfg.Fs/2:
		return nil, fmt.Errorf("synth: ripple frequency %v Hz at or above Nyquist", cfg.RippleFreq)
	}
	return &Generator{cfg: cfg}, nil
}

func (g *Generator) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(g.cfg.Seed, stream))
}

func (g *Generator) source(stream uint64) rand.Source {
	return rand.NewPCG(g.cfg.Seed, stream)
}

// centers returns evenly spaced bin centers across the arena
func (g *Generator) centers(n int) []float64 {
	out := make([]float64, n)
	w := g.cfg.ArenaSize / float64(n)
	for i := range out {
		out[i] = (float64(i) + 0.5) * w
	}
	return out
}

// FieldCenters returns each neuron's place field center
func (g *Generator) FieldCenters() [][2]float64 {
	u := distuv.Uniform{Min: 0.1 * g.cfg.ArenaSize, Max: 0.9 * g.cfg.ArenaSize, Src: g.source(1)}
	out := make([][2]float64, g.cfg.NumNeurons)
	for i := range out {
		out[i] = [2]float64{u.Rand(), u.Rand()}
	}
	return out
}

func (g *Generator) rate(field [2]float64, x, y float64) float64 {
	d2 := (x-field[0])*(x-field[0]) + (y-field[1])*(y-field[1])
	return g.cfg.BaseRate + g.cfg.PeakRate*math.Exp(-d2/(2*g.cfg.FieldWidth*g.cfg.FieldWidth))
}

// TuningCurves evaluates the place fields at every bin center
func (g *Generator) TuningCurves() (*decode.TuningCurves, error) {
	xc, yc := g.centers(g.cfg.GridX), g.centers(g.cfg.GridY)
	fields := g.FieldCenters()
	rates := make([][][]float64, len(fields))
	for n, f := range fields {
		rates[n] = make([][]float64, len(yc))
		for yi, y := range yc {
			rates[n][yi] = make([]float64, len(xc))
			for xi, x := range xc {
				rates[n][yi][xi] = g.rate(f, x, y)
			}
		}
	}
	return decode.NewTuningCurves(rates, xc, yc)
}

// Position is a reflecting random walk interrupted by stationary rests
func (g *Generator) Position() neuro.Position {
	rng := g.rng(2)
	dt := 1 / g.cfg.PositionRate
	n := int(g.cfg.Duration*g.cfg.PositionRate) + 1
	pos := neuro.Position{Time: make([]float64, n), X: make([]float64, n), Y: make([]float64, n)}

	x, y := g.cfg.ArenaSize/2, g.cfg.ArenaSize/2
	heading := rng.Float64() * 2 * math.Pi
	cycle := g.cfg.RunPeriod + g.cfg.RestPeriod
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		pos.Time[i], pos.X[i], pos.Y[i] = t, x, y

		if math.Mod(t, cycle) >= g.cfg.RunPeriod {
			continue
		}
		heading += 0.3 * rng.NormFloat64()
		x, heading = reflect(x+g.cfg.RunSpeed*dt*math.Cos(heading), heading, g.cfg.ArenaSize, true)
		y, heading = reflect(y+g.cfg.RunSpeed*dt*math.Sin(heading), heading, g.cfg.ArenaSize, false)
	}
	return pos
}

func reflect(v, heading, size float64, horizontal bool) (float64, float64) {
	if v >= 0 && v <= size {
		return v, heading
	}
	if v < 0 {
		v = -v
	} else {
		v = 2*size - v
	}
	if horizontal {
		return v, math.Pi - heading
	}
	return v, -heading
}

// Ripples places RipplesPerRest events inside each rest period, away from
// the rest boundaries
func (g *Generator) Ripples() []Ripple {
	rng := g.rng(3)
	var out []Ripple
	cycle := g.cfg.RunPeriod + g.cfg.RestPeriod
	for restStart := g.cfg.RunPeriod; restStart+g.cfg.RestPeriod <= g.cfg.Duration; restStart += cycle {
		slot := g.cfg.RestPeriod / float64(g.cfg.RipplesPerRest)
		for k := 0; k < g.cfg.RipplesPerRest; k++ {
			lo := restStart + float64(k)*slot + 0.1
			span := slot - 0.2 - g.cfg.RippleDuration
			if span <= 0 {
				continue
			}
			start := lo + rng.Float64()*span
			out = append(out, Ripple{Start: start, Stop: start + g.cfg.RippleDuration})
		}
	}
	return out
}

// LFP is Gaussian noise plus a sinusoidal burst at every ripple
func (g *Generator) LFP(ripples []Ripple) neuro.AnalogSignal {
	noise := distuv.Normal{Mu: 0, Sigma: g.cfg.NoiseStd, Src: g.source(4)}
	n := int(g.cfg.Duration * g.cfg.Fs)
	times := make([]float64, n)
	data := make([]float64, n)
	for i := range data {
		times[i] = float64(i) / g.cfg.Fs
		data[i] = noise.Rand()
	}
	for _, r := range ripples {
		i0 := int(math.Ceil(r.Start * g.cfg.Fs))
		i1 := int(math.Floor(r.Stop * g.cfg.Fs))
		for i := i0; i <= i1 && i < n; i++ {
			data[i] += g.cfg.RippleAmp * math.Sin(2*math.Pi*g.cfg.RippleFreq*(times[i]-r.Start))
		}
	}
	return neuro.AnalogSignal{Time: times, Data: [][]float64{data}}
}

// Spikes draws Poisson spikes from the place fields along pos, plus replay
// spikes during each ripple along a straight path from the animal's
// location toward a random point of the arena
func (g *Generator) Spikes(pos neuro.Position, ripples []Ripple) []neuro.SpikeTrain {
	fields := g.FieldCenters()
	counts := distuv.Poisson{Lambda: 1, Src: g.source(5)}
	jitter := g.rng(6)
	target := distuv.Uniform{Min: 0, Max: g.cfg.ArenaSize, Src: g.source(7)}

	times := make([][]float64, len(fields))
	emit := func(n int, rate, t0, width float64) {
		if rate <= 0 {
			return
		}
		counts.Lambda = rate * width
		for k := int(counts.Rand()); k > 0; k-- {
			times[n] = append(times[n], t0+jitter.Float64()*width)
		}
	}

	dt := 1 / g.cfg.PositionRate
	for i := range pos.Time {
		for n, f := range fields {
			emit(n, g.rate(f, pos.X[i], pos.Y[i]), pos.Time[i], dt)
		}
	}

	const replaySteps = 10
	for _, r := range ripples {
		x0, y0 := nearest(pos, r.Start)
		x1, y1 := target.Rand(), target.Rand()
		step := (r.Stop - r.Start) / replaySteps
		for s := 0; s < replaySteps; s++ {
			frac := (float64(s) + 0.5) / replaySteps
			x, y := x0+frac*(x1-x0), y0+frac*(y1-y0)
			for n, f := range fields {
				boost := g.cfg.ReplayRate * (g.rate(f, x, y) - g.cfg.BaseRate) / g.cfg.PeakRate
				emit(n, boost, r.Start+float64(s)*step, step)
			}
		}
	}

	trains := make([]neuro.SpikeTrain, len(fields))
	for n, ts := range times {
		sort.Float64s(ts)
		trains[n] = neuro.SpikeTrain{Label: fmt.Sprintf("TT%d_%d", n/4+1, n%4+1), Time: ts}
	}
	return trains
}

func nearest(pos neuro.Position, t float64) (float64, float64) {
	i := sort.SearchFloat64s(pos.Time, t)
	if i >= pos.Len() {
		i = pos.Len() - 1
	}
	return pos.X[i], pos.Y[i]
}

// Session builds a complete session with three task phases and two zones
// splitting the arena into left and right halves
func (g *Generator) Session() (*session.Session, []Ripple, error) {
	tc, err := g.TuningCurves()
	if err != nil {
		return nil, nil, err
	}
	pos := g.Position()
	ripples := g.Ripples()

	third := g.cfg.Duration / 3
	labels := []string{"prerecord", "task", "postrecord"}
	epochs := make([]neuro.Epoch, len(labels))
	for i := range labels {
		epochs[i] = neuro.MustEpoch([]float64{float64(i) * third}, []float64{float64(i+1) * third})
	}
	tt, err := session.NewTaskTimes(labels, epochs)
	if err != nil {
		return nil, nil, err
	}

	var left, right []int
	for y := 0; y < g.cfg.GridY; y++ {
		for x := 0; x < g.cfg.GridX; x++ {
			if x < g.cfg.GridX/2 {
				left = append(left, y*g.cfg.GridX+x)
			} else {
				right = append(right, y*g.cfg.GridX+x)
			}
		}
	}

	s := &session.Session{
		ID:           g.cfg.ID,
		Spikes:       g.Spikes(pos, ripples),
		LFP:          g.LFP(ripples),
		Fs:           g.cfg.Fs,
		Position:     pos,
		TuningCurves: tc,
		TaskTimes:    tt,
		Zones:        []session.Zone{{Label: "left", Bins: left}, {Label: "right", Bins: right}},
	}
	return s, ripples, s.Validate()
}

// Package session reads and writes pre-extracted recording sessions: spike
// trains, LFP, tracked position, tuning curves, task phases and spatial zones.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/swrdecode/internal/decode"
	"github.com/chrissnell/swrdecode/pkg/neuro"
)

// ErrInvalidSession is returned when a session file is internally inconsistent
var ErrInvalidSession = errors.New("session: invalid session")

// Zone is a named set of flat spatial bin indices (y*nx + x)
type Zone struct {
	Label string `json:"label"`
	Bins  []int  `json:"bins"`
}

// TaskTimes maps each task phase label to its epoch. Labels are fixed when
// the session is loaded and iterate in file order through Labels.
type TaskTimes struct {
	labels []string
	epochs map[string]neuro.Epoch
}

// NewTaskTimes builds the fixed task phase mapping; duplicate labels are an error
func NewTaskTimes(labels []string, epochs []neuro.Epoch) (TaskTimes, error) {
	if len(labels) != len(epochs) {
		return TaskTimes{}, fmt.Errorf("%w: %d task labels for %d epochs", ErrInvalidSession, len(labels), len(epochs))
	}
	tt := TaskTimes{
		labels: append([]string(nil), labels...),
		epochs: make(map[string]neuro.Epoch, len(labels)),
	}
	for i, label := range labels {
		if _, dup := tt.epochs[label]; dup {
			return TaskTimes{}, fmt.Errorf("%w: duplicate task label %q", ErrInvalidSession, label)
		}
		tt.epochs[label] = epochs[i]
	}
	return tt, nil
}

// Labels returns the task phase labels in file order
func (tt TaskTimes) Labels() []string {
	return append([]string(nil), tt.labels...)
}

// Epoch returns the epoch for label
func (tt TaskTimes) Epoch(label string) (neuro.Epoch, bool) {
	e, ok := tt.epochs[label]
	return e, ok
}

// Session is one loaded recording
type Session struct {
	ID           string
	Spikes       []neuro.SpikeTrain
	LFP          neuro.AnalogSignal
	Fs           float64
	Position     neuro.Position
	TuningCurves *decode.TuningCurves
	TaskTimes    TaskTimes
	Zones        []Zone
}

// ZoneLabels returns the zone labels in file order
func (s *Session) ZoneLabels() []string {
	labels := make([]string, len(s.Zones))
	for i, z := range s.Zones {
		labels[i] = z.Label
	}
	return labels
}

// Validate checks that every part of the session agrees with the others
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidSession)
	}
	if s.TuningCurves == nil {
		return fmt.Errorf("%w: missing tuning curves", ErrInvalidSession)
	}
	if n := s.TuningCurves.NumNeurons(); n != len(s.Spikes) {
		return fmt.Errorf("%w: %d spike trains but %d tuning curves", ErrInvalidSession, len(s.Spikes), n)
	}
	for _, st := range s.Spikes {
		if !sort.Float64sAreSorted(st.Time) {
			return fmt.Errorf("%w: spike train %q: %w", ErrInvalidSession, st.Label, neuro.ErrUnsortedTimes)
		}
	}
	if s.LFP.NumChannels() != 1 {
		return fmt.Errorf("%w: LFP must have one channel, got %d", ErrInvalidSession, s.LFP.NumChannels())
	}
	if s.Fs <= 0 {
		return fmt.Errorf("%w: LFP sample rate %v", ErrInvalidSession, s.Fs)
	}
	if len(s.Position.X) != s.Position.Len() || len(s.Position.Y) != s.Position.Len() {
		return fmt.Errorf("%w: position arrays differ in length", ErrInvalidSession)
	}

	nBins := s.TuningCurves.NumBins()
	seen := make(map[string]bool, len(s.Zones))
	for _, z := range s.Zones {
		if seen[z.Label] {
			return fmt.Errorf("%w: duplicate zone %q", ErrInvalidSession, z.Label)
		}
		seen[z.Label] = true
		for _, b := range z.Bins {
			if b < 0 || b >= nBins {
				return fmt.Errorf("%w: zone %q bin %d outside [0, %d)", ErrInvalidSession, z.Label, b, nBins)
			}
		}
	}
	return nil
}

// file is the on-disk layout
type file struct {
	ID        string        `json:"id"`
	Spikes    []spikeRecord `json:"spikes"`
	LFP       lfpRecord     `json:"lfp"`
	Position  posRecord     `json:"position"`
	Tuning    tuningRecord  `json:"tuning_curves"`
	TaskTimes []taskRecord  `json:"task_times"`
	Zones     []Zone        `json:"zones"`
}

type spikeRecord struct {
	Label string    `json:"label"`
	Time  []float64 `json:"time"`
}

type lfpRecord struct {
	Time []float64 `json:"time"`
	Data []float64 `json:"data"`
	Fs   float64   `json:"fs"`
}

type posRecord struct {
	Time []float64 `json:"time"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
}

type tuningRecord struct {
	Rates    [][][]float64 `json:"rates"`
	XCenters []float64     `json:"x_centers"`
	YCenters []float64     `json:"y_centers"`
}

type taskRecord struct {
	Label  string    `json:"label"`
	Starts []float64 `json:"starts"`
	Stops  []float64 `json:"stops"`
}

// Load reads and validates a session file
func Load(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	dec.SetCustomStructTag("json")
	var raw file
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", path, err)
	}

	s, err := raw.session()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (raw file) session() (*Session, error) {
	s := &Session{ID: raw.ID, Fs: raw.LFP.Fs, Zones: raw.Zones}

	for _, sr := range raw.Spikes {
		st, err := neuro.NewSpikeTrain(sr.Label, sr.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: spike train %q: %w", ErrInvalidSession, sr.Label, err)
		}
		s.Spikes = append(s.Spikes, st)
	}

	lfp, err := neuro.NewAnalogSignal(raw.LFP.Time, [][]float64{raw.LFP.Data})
	if err != nil {
		return nil, fmt.Errorf("%w: LFP: %w", ErrInvalidSession, err)
	}
	s.LFP = lfp
	s.Position = neuro.Position{Time: raw.Position.Time, X: raw.Position.X, Y: raw.Position.Y}

	tc, err := decode.NewTuningCurves(raw.Tuning.Rates, raw.Tuning.XCenters, raw.Tuning.YCenters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	s.TuningCurves = tc

	labels := make([]string, len(raw.TaskTimes))
	epochs := make([]neuro.Epoch, len(raw.TaskTimes))
	for i, tr := range raw.TaskTimes {
		e, err := neuro.NewEpoch(tr.Starts, tr.Stops)
		if err != nil {
			return nil, fmt.Errorf("%w: task %q: %w", ErrInvalidSession, tr.Label, err)
		}
		if e.IsEmpty() {
			return nil, fmt.Errorf("%w: task %q has no interval", ErrInvalidSession, tr.Label)
		}
		labels[i], epochs[i] = tr.Label, e
	}
	if s.TaskTimes, err = NewTaskTimes(labels, epochs); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the session to path. Every interval of a task phase is kept.
func (s *Session) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}

	raw := file{
		ID:       s.ID,
		LFP:      lfpRecord{Time: s.LFP.Time, Data: s.LFP.Channel(0), Fs: s.Fs},
		Position: posRecord{Time: s.Position.Time, X: s.Position.X, Y: s.Position.Y},
		Tuning: tuningRecord{
			Rates:    s.TuningCurves.Rates(),
			XCenters: s.TuningCurves.XCenters,
			YCenters: s.TuningCurves.YCenters,
		},
		Zones: s.Zones,
	}
	for _, st := range s.Spikes {
		raw.Spikes = append(raw.Spikes, spikeRecord{Label: st.Label, Time: st.Time})
	}
	for _, label := range s.TaskTimes.Labels() {
		e, _ := s.TaskTimes.Epoch(label)
		if e.IsEmpty() {
			return fmt.Errorf("%w: task %q has no interval", ErrInvalidSession, label)
		}
		raw.TaskTimes = append(raw.TaskTimes, taskRecord{Label: label, Starts: e.Starts, Stops: e.Stops})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(raw); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return f.Close()
}

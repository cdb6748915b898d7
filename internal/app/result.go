package app

import (
	"math"

	"github.com/chrissnell/swrdecode/pkg/neuro"
	"github.com/chrissnell/swrdecode/pkg/responseformat"
)

// Result is the outcome of one run
type Result struct {
	RunID      string
	SessionID  string
	ParamsHash string

	Rest neuro.Epoch
	SWRs neuro.Epoch

	// Tasks follows the session's task time order
	Tasks []TaskResult

	// Likelihood holds the zone mass of every event
	Likelihood *Aggregate
	// Shuffles holds the zone statistic of every shuffle
	Shuffles *Aggregate
}

// TaskResult summarizes one task time
type TaskResult struct {
	Label  string
	Events neuro.Epoch

	// Degenerate is set when the task time had too few ripples to analyze
	Degenerate bool

	Sequences      int
	SequenceEpochs neuro.Epoch

	Zones map[string]ZoneResult
}

// ZoneResult is the likelihood statistic of one zone and its rank among the shuffles
type ZoneResult struct {
	Likelihood  float64
	StdErr      float64
	Decodable   int
	Percentile  float64
	Significant bool
}

func degenerateZone() ZoneResult {
	return ZoneResult{
		Likelihood: math.NaN(),
		StdErr:     math.NaN(),
		Percentile: math.NaN(),
	}
}

// Task returns the result for one task time label
func (r *Result) Task(label string) (TaskResult, bool) {
	for _, tr := range r.Tasks {
		if tr.Label == label {
			return tr, true
		}
	}
	return TaskResult{}, false
}

// Report is the serialized form of a Result
type Report struct {
	RunID      string       `json:"run_id"`
	SessionID  string       `json:"session_id"`
	ParamsHash string       `json:"params_hash"`
	Rest       EpochReport  `json:"rest"`
	SWRs       EpochReport  `json:"swrs"`
	Tasks      []TaskReport `json:"tasks"`

	Likelihood map[string]map[string][]responseformat.Float `json:"likelihood"`
	Shuffles   map[string]map[string][]responseformat.Float `json:"shuffles"`
}

// EpochReport lists interval bounds
type EpochReport struct {
	Starts []float64 `json:"starts"`
	Stops  []float64 `json:"stops"`
}

// TaskReport is the serialized form of a TaskResult
type TaskReport struct {
	Label      string                `json:"label"`
	Events     EpochReport           `json:"events"`
	Degenerate bool                  `json:"degenerate"`
	Sequences  int                   `json:"sequences"`
	SeqEpochs  EpochReport           `json:"sequence_epochs"`
	Zones      map[string]ZoneReport `json:"zones"`
}

// ZoneReport is the serialized form of a ZoneResult
type ZoneReport struct {
	Likelihood  responseformat.Float `json:"likelihood"`
	StdErr      responseformat.Float `json:"stderr"`
	Decodable   int                  `json:"decodable"`
	Percentile  responseformat.Float `json:"percentile"`
	Significant bool                 `json:"significant"`
}

// Report converts the result for output
func (r *Result) Report() Report {
	rep := Report{
		RunID:      r.RunID,
		SessionID:  r.SessionID,
		ParamsHash: r.ParamsHash,
		Rest:       epochReport(r.Rest),
		SWRs:       epochReport(r.SWRs),
		Tasks:      make([]TaskReport, len(r.Tasks)),
		Likelihood: r.Likelihood.Report(),
		Shuffles:   r.Shuffles.Report(),
	}
	for i, tr := range r.Tasks {
		zones := make(map[string]ZoneReport, len(tr.Zones))
		for label, z := range tr.Zones {
			zones[label] = ZoneReport{
				Likelihood:  responseformat.Float(z.Likelihood),
				StdErr:      responseformat.Float(z.StdErr),
				Decodable:   z.Decodable,
				Percentile:  responseformat.Float(z.Percentile),
				Significant: z.Significant,
			}
		}
		rep.Tasks[i] = TaskReport{
			Label:      tr.Label,
			Events:     epochReport(tr.Events),
			Degenerate: tr.Degenerate,
			Sequences:  tr.Sequences,
			SeqEpochs:  epochReport(tr.SequenceEpochs),
			Zones:      zones,
		}
	}
	return rep
}

func epochReport(e neuro.Epoch) EpochReport {
	rep := EpochReport{Starts: []float64{}, Stops: []float64{}}
	rep.Starts = append(rep.Starts, e.Starts...)
	rep.Stops = append(rep.Stops, e.Stops...)
	return rep
}

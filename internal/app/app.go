// Package app runs the complete analysis of one session: ripple detection,
// per-event zone likelihoods, replay sequences and the shuffle test.
package app

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/swrdecode/internal/binning"
	"github.com/chrissnell/swrdecode/internal/decode"
	"github.com/chrissnell/swrdecode/internal/sequence"
	"github.com/chrissnell/swrdecode/internal/session"
	"github.com/chrissnell/swrdecode/internal/shuffle"
	"github.com/chrissnell/swrdecode/internal/store"
	"github.com/chrissnell/swrdecode/internal/swr"
	"github.com/chrissnell/swrdecode/pkg/config"
	"github.com/chrissnell/swrdecode/pkg/neuro"
)

// Artifact kinds written to the store
const (
	kindSWR         = "swr"
	kindEventMass   = "event-mass"
	kindShuffleMass = "shuffle-mass"
)

// App represents the analysis application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
	store  store.Store
	binner *binning.Binner
}

// Option configures an App
type Option func(*App)

// WithStore memoizes intermediate artifacts in s
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		binner: binning.NewBinner(logger.Named("binning")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run analyzes one session
func (a *App) Run(ctx context.Context, sess *session.Session) (*Result, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	hash, err := store.ParamsHash(a.memoParams())
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      uuid.NewString(),
		SessionID:  sess.ID,
		ParamsHash: hash,
		Likelihood: NewAggregate(sess.TaskTimes.Labels(), sess.ZoneLabels()),
		Shuffles:   NewAggregate(sess.TaskTimes.Labels(), sess.ZoneLabels()),
	}
	logger := a.logger.With("session", sess.ID, "run", res.RunID)
	logger.Infow("starting analysis", "neurons", len(sess.Spikes), "task_times", len(sess.TaskTimes.Labels()), "zones", len(sess.Zones))

	res.Rest = neuro.SpeedEpochs(sess.Position, a.cfg.SWR.RestSpeed, true)
	swrs, err := a.detect(ctx, sess, hash, res.Rest)
	if err != nil {
		return nil, err
	}
	res.SWRs = swr.FindMultiInEpochs(sess.Spikes, swrs, a.cfg.SWR.MinInvolved)
	logger.Infow("detected sharp-wave ripples", "detected", swrs.Len(), "multi_unit", res.SWRs.Len(), "rest_periods", res.Rest.Len())

	var active []taskEvents
	for _, label := range sess.TaskTimes.Labels() {
		taskEpoch, _ := sess.TaskTimes.Epoch(label)
		events := swr.Restrict(res.SWRs, res.Rest, taskEpoch, a.cfg.SWR.MinDuration)
		tr := TaskResult{Label: label, Events: events, Zones: make(map[string]ZoneResult, len(sess.Zones))}

		if events.Len() == 0 || events.Len() < a.cfg.SWR.MinSWR {
			logger.Warnw("too few sharp-wave ripples in task time", "task", label, "events", events.Len(), "min_swr", a.cfg.SWR.MinSWR)
			tr.Degenerate = true
			for _, z := range sess.Zones {
				tr.Zones[z.Label] = degenerateZone()
			}
			res.Tasks = append(res.Tasks, tr)
			continue
		}

		count, spans, err := a.replay(sess, events)
		if err != nil {
			return nil, fmt.Errorf("replay in task time %q: %w", label, err)
		}
		tr.Sequences, tr.SequenceEpochs = count, spans

		active = append(active, taskEvents{label: label, counts: binning.CountInEpochs(sess.Spikes, events)})
		res.Tasks = append(res.Tasks, tr)
	}

	if len(active) == 0 {
		logger.Warnw("no task time has enough sharp-wave ripples, skipping likelihoods")
		return res, nil
	}

	eventMass, err := store.Memoize(ctx, a.store, a.key(sess, hash, kindEventMass, store.NoShuffle), func(ctx context.Context) (map[string][]float64, error) {
		return a.eventMass(sess.TuningCurves, active, sess.Zones)
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(active)*len(sess.Zones))
	for _, te := range active {
		for _, z := range sess.Zones {
			keys = append(keys, zoneKey(te.label, z.Label))
		}
	}

	engine := shuffle.Engine{NumShuffles: a.cfg.Shuffle.NumShuffles, Workers: a.cfg.Shuffle.Workers, Seed: a.cfg.Shuffle.Seed}
	dists, err := engine.RunMulti(ctx, sess.TuningCurves, keys, func(ctx context.Context, i int, tc *decode.TuningCurves) (map[string]float64, error) {
		return store.Memoize(ctx, a.store, a.key(sess, hash, kindShuffleMass, i), func(ctx context.Context) (map[string]float64, error) {
			mass, err := a.eventMass(tc, active, sess.Zones)
			if err != nil {
				return nil, err
			}
			return meanMass(mass), nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("shuffle test: %w", err)
	}

	for i := range res.Tasks {
		tr := &res.Tasks[i]
		if tr.Degenerate {
			continue
		}
		for _, z := range sess.Zones {
			k := zoneKey(tr.Label, z.Label)
			masses := eventMass[k]
			if err := res.Likelihood.Append(tr.Label, z.Label, masses...); err != nil {
				return nil, err
			}
			dist := dists[k]
			if err := res.Shuffles.Append(tr.Label, z.Label, dist.Values()...); err != nil {
				return nil, err
			}

			zr := ZoneResult{Decodable: countFinite(masses)}
			zr.Likelihood, zr.StdErr = shuffle.MeanStdErr(masses)
			if zr.Decodable == 0 {
				logger.Warnw("no decodable events for zone", "task", tr.Label, "zone", z.Label, "events", len(masses))
			}
			zr.Percentile = shuffle.PercentileRank(zr.Likelihood, dist)
			zr.Significant = shuffle.Significant(zr.Percentile, a.cfg.Shuffle.PercentileThresh)
			tr.Zones[z.Label] = zr
		}
	}

	logger.Infow("analysis complete", "task_times", len(res.Tasks), "shuffles", engine.NumShuffles)
	return res, nil
}

// detect runs ripple detection, optionally z-scoring over rest periods only
func (a *App) detect(ctx context.Context, sess *session.Session, hash string, rest neuro.Epoch) (neuro.Epoch, error) {
	p := swr.Params{
		FreqBand:    [2]float64{a.cfg.SWR.FreqBand[0], a.cfg.SWR.FreqBand[1]},
		ZThresh:     a.cfg.SWR.ZThresh,
		PowerThresh: a.cfg.SWR.PowerThresh,
		MergeThresh: a.cfg.SWR.MergeThresh,
		MinLength:   a.cfg.SWR.MinLength,
	}
	var timesForZ *neuro.Epoch
	if a.cfg.SWR.ZScoreOnRest {
		timesForZ = &rest
	}
	epochs, err := store.Memoize(ctx, a.store, a.key(sess, hash, kindSWR, store.NoShuffle), func(ctx context.Context) (neuro.Epoch, error) {
		return swr.Detect(sess.LFP, sess.Fs, p, timesForZ)
	})
	if err != nil {
		return neuro.Epoch{}, fmt.Errorf("ripple detection: %w", err)
	}
	return epochs, nil
}

// taskEvents holds the per-event spike counts of one task time
type taskEvents struct {
	label  string
	counts binning.EpochCounts
}

// eventMass decodes every event of every active task time, each event as one
// variable-width bin, and returns the zone mass per event keyed by task/zone
func (a *App) eventMass(tc *decode.TuningCurves, tasks []taskEvents, zones []session.Zone) (map[string][]float64, error) {
	flat := tc.Flat()
	out := make(map[string][]float64, len(tasks)*len(zones))
	for _, te := range tasks {
		post, err := decode.DecodePosterior(te.counts.Counts, te.counts.Time, flat, te.counts.Widths, a.decodeParams())
		if err != nil {
			return nil, fmt.Errorf("decoding task time %q: %w", te.label, err)
		}
		for _, z := range zones {
			masses := make([]float64, post.NumTimeBins())
			for t := range masses {
				masses[t] = post.ZoneMass(t, z.Bins)
			}
			out[zoneKey(te.label, z.Label)] = masses
		}
	}
	return out, nil
}

// replay bins and decodes each event and counts the sequences that survive
// teleport removal
func (a *App) replay(sess *session.Session, events neuro.Epoch) (int, neuro.Epoch, error) {
	dt := a.cfg.Binning.Dt
	opts := binning.Options{
		Window:      a.cfg.Binning.Window,
		GaussianStd: a.cfg.Binning.GaussianStd,
		Normalized:  a.cfg.Binning.IsNormalized(),
	}
	seq := sequence.Params{
		SpeedThresh: a.cfg.Sequence.SpeedThresh,
		MinLength:   a.cfg.Sequence.MinLength,
		MinEpochs:   a.cfg.Sequence.MinEpochs,
		Margin:      a.cfg.Sequence.Margin,
	}

	var count int
	var spans neuro.Epoch
	for i := range events.Starts {
		event := events.Select([]int{i})
		counts, err := a.binner.Bin(sess.Spikes, eventEdges(events.Starts[i], events.Stops[i], dt), dt, opts)
		if err != nil {
			return 0, neuro.Epoch{}, err
		}
		decoded, _, err := decode.Decode(counts, sess.TuningCurves, []float64{dt}, a.decodeParams())
		if err != nil {
			return 0, neuro.Epoch{}, err
		}
		_, kept := sequence.Filter(decoded, &event, seq)
		count += kept.Len()
		spans = spans.Union(kept)
	}
	return count, spans, nil
}

// eventEdges covers [start, stop] with dt-wide bins. A trailing stretch
// shorter than dt gets a full bin of its own, so the last edge may pass stop.
func eventEdges(start, stop, dt float64) []float64 {
	ratio := (stop - start) / dt
	n := int(math.Round(ratio))
	if math.Abs(ratio-float64(n)) > 1e-9 {
		n = int(math.Ceil(ratio))
	}
	if n < 1 {
		n = 1
	}
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = start + float64(i)*dt
	}
	return edges
}

func (a *App) decodeParams() decode.Params {
	return decode.Params{MinNeurons: a.cfg.Decoding.MinNeurons, MinSpikes: a.cfg.Decoding.MinSpikes}
}

// memoParams is the part of the configuration that determines artifacts.
// Storage and worker count change nothing in the output.
func (a *App) memoParams() any {
	return struct {
		Binning     config.BinningData
		Decoding    config.DecodingData
		SWR         config.SWRData
		Sequence    config.SequenceData
		NumShuffles int
		Seed        uint64
	}{a.cfg.Binning, a.cfg.Decoding, a.cfg.SWR, a.cfg.Sequence, a.cfg.Shuffle.NumShuffles, a.cfg.Shuffle.Seed}
}

func (a *App) key(sess *session.Session, hash, kind string, shuffleIndex int) store.Key {
	return store.Key{Session: sess.ID, Kind: kind, Params: hash, Shuffle: shuffleIndex}
}

func zoneKey(task, zone string) string {
	return task + "/" + zone
}

// meanMass reduces per-event masses to the mean over decodable events
func meanMass(mass map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(mass))
	for k, v := range mass {
		out[k], _ = shuffle.MeanStdErr(v)
	}
	return out
}

func countFinite(values []float64) int {
	var n int
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

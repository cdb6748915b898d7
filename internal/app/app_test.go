package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chrissnell/swrdecode/internal/session"
	"github.com/chrissnell/swrdecode/internal/store"
	"github.com/chrissnell/swrdecode/internal/synth"
	"github.com/chrissnell/swrdecode/pkg/config"
	"github.com/chrissnell/swrdecode/pkg/responseformat"
)

func testSession(t *testing.T) (*session.Session, []synth.Ripple) {
	t.Helper()
	g, err := synth.NewGenerator(synth.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	sess, ripples, err := g.Session()
	if err != nil {
		t.Fatal(err)
	}
	return sess, ripples
}

func testConfig() *config.ConfigData {
	c := config.Default()
	c.Shuffle.NumShuffles = 20
	c.Shuffle.Workers = 2
	c.SWR.MinInvolved = 2
	c.SWR.MinSWR = 2
	return c
}

func TestRunSyntheticSession(t *testing.T) {
	sess, ripples := testSession(t)
	res, err := New(testConfig(), nil).Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}

	if res.SessionID != sess.ID || res.RunID == "" || res.ParamsHash == "" {
		t.Errorf("result not labeled: %+v", res)
	}
	if res.SWRs.Len() < len(ripples)/2 {
		t.Fatalf("expected most of the %d ripples to be detected, got %d", len(ripples), res.SWRs.Len())
	}
	for i := range res.SWRs.Starts {
		mid := (res.SWRs.Starts[i] + res.SWRs.Stops[i]) / 2
		matched := false
		for _, r := range ripples {
			if mid >= r.Start-0.02 && mid <= r.Stop+0.02 {
				matched = true
			}
		}
		if !matched {
			t.Errorf("event [%.3f, %.3f] does not match a generated ripple", res.SWRs.Starts[i], res.SWRs.Stops[i])
		}
	}

	if len(res.Tasks) != 3 {
		t.Fatalf("expected 3 task times, got %d", len(res.Tasks))
	}
	analyzed := 0
	for _, tr := range res.Tasks {
		if tr.Degenerate {
			continue
		}
		analyzed++

		left, err := res.Likelihood.Values(tr.Label, "left")
		if err != nil {
			t.Fatal(err)
		}
		right, _ := res.Likelihood.Values(tr.Label, "right")
		if len(left) != tr.Events.Len() || len(right) != tr.Events.Len() {
			t.Errorf("%s: expected one likelihood per event (%d), got %d and %d", tr.Label, tr.Events.Len(), len(left), len(right))
		}
		for i := range left {
			if math.IsNaN(left[i]) {
				continue
			}
			if math.Abs(left[i]+right[i]-1) > 1e-9 {
				t.Errorf("%s event %d: zones cover the arena but masses sum to %v", tr.Label, i, left[i]+right[i])
			}
		}

		for _, zone := range sess.ZoneLabels() {
			shuffles, _ := res.Shuffles.Values(tr.Label, zone)
			if len(shuffles) != 20 {
				t.Errorf("%s/%s: expected 20 shuffle values, got %d", tr.Label, zone, len(shuffles))
			}
			zr := tr.Zones[zone]
			if zr.Decodable > 0 && (zr.Percentile < 0 || zr.Percentile > 100) {
				t.Errorf("%s/%s: percentile %v outside [0, 100]", tr.Label, zone, zr.Percentile)
			}
			if zr.Significant != (zr.Percentile >= 95) {
				t.Errorf("%s/%s: significance %v does not match percentile %v", tr.Label, zone, zr.Significant, zr.Percentile)
			}
		}
		if tr.SequenceEpochs.Len() > tr.Sequences {
			t.Errorf("%s: %d sequence spans for %d sequences", tr.Label, tr.SequenceEpochs.Len(), tr.Sequences)
		}
	}
	if analyzed == 0 {
		t.Fatal("expected at least one task time with enough ripples")
	}
}

func TestRunIsReproducible(t *testing.T) {
	sess, _ := testSession(t)

	serial := testConfig()
	serial.Shuffle.Workers = 1
	parallel := testConfig()
	parallel.Shuffle.Workers = 4

	a, err := New(serial, nil).Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(parallel, nil).Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}

	if a.RunID == b.RunID {
		t.Error("each run should get its own id")
	}
	if a.ParamsHash != b.ParamsHash {
		t.Errorf("worker count changed the parameter hash: %s vs %s", a.ParamsHash, b.ParamsHash)
	}
	for i, tr := range a.Tasks {
		for zone, za := range tr.Zones {
			zb := b.Tasks[i].Zones[zone]
			if !sameFloat(za.Likelihood, zb.Likelihood) || !sameFloat(za.Percentile, zb.Percentile) {
				t.Errorf("%s/%s: serial %+v and parallel %+v runs differ", tr.Label, zone, za, zb)
			}
		}
	}
}

func TestRunDegenerateTaskTimes(t *testing.T) {
	sess, _ := testSession(t)
	c := testConfig()
	c.SWR.MinSWR = 1000

	res, err := New(c, nil).Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range res.Tasks {
		if !tr.Degenerate {
			t.Errorf("%s: expected a degenerate task time", tr.Label)
		}
		for zone, zr := range tr.Zones {
			if !math.IsNaN(zr.Likelihood) || !math.IsNaN(zr.Percentile) || zr.Significant {
				t.Errorf("%s/%s: expected NaN statistics, got %+v", tr.Label, zone, zr)
			}
		}
		for _, zone := range sess.ZoneLabels() {
			v, err := res.Likelihood.Values(tr.Label, zone)
			if err != nil || len(v) != 0 {
				t.Errorf("%s/%s: expected an empty list, got %v (%v)", tr.Label, zone, v, err)
			}
		}
	}

	var buf bytes.Buffer
	f, _ := responseformat.NewFormatter(responseformat.FormatJSON)
	if err := f.Write(&buf, res.Report()); err != nil {
		t.Fatalf("degenerate result must encode: %v", err)
	}
	if !strings.Contains(buf.String(), `"likelihood": null`) {
		t.Errorf("expected NaN statistics as null, got %s", buf.String())
	}
}

func TestRunMemoizes(t *testing.T) {
	sess, _ := testSession(t)
	mem := store.NewMemory()
	c := testConfig()

	first, err := New(c, nil, WithStore(mem)).Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	stored := mem.Len()
	if want := 2 + c.Shuffle.NumShuffles; stored != want {
		t.Errorf("expected %d stored artifacts, got %d", want, stored)
	}

	second, err := New(c, nil, WithStore(mem)).Run(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if mem.Len() != stored {
		t.Errorf("second run wrote new artifacts: %d -> %d", stored, mem.Len())
	}
	if !first.SWRs.Equal(second.SWRs) {
		t.Error("cached ripple epochs differ from the computed ones")
	}
	for i, tr := range first.Tasks {
		for zone, z1 := range tr.Zones {
			z2 := second.Tasks[i].Zones[zone]
			if !sameFloat(z1.Likelihood, z2.Likelihood) || !sameFloat(z1.Percentile, z2.Percentile) {
				t.Errorf("%s/%s: cached result %+v differs from %+v", tr.Label, zone, z2, z1)
			}
		}
	}
}

func TestRunRejectsInvalidSession(t *testing.T) {
	sess, _ := testSession(t)
	sess.ID = ""
	if _, err := New(testConfig(), nil).Run(context.Background(), sess); !errors.Is(err, session.ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	a := NewAggregate([]string{"prerecord", "task"}, []string{"u", "shortcut"})
	if err := a.Append("task", "u", 0.1, 0.2); err != nil {
		t.Fatal(err)
	}
	if err := a.Append("postrecord", "u", 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey for a task time, got %v", err)
	}
	if err := a.Append("task", "novel", 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey for a zone, got %v", err)
	}

	v, err := a.Values("task", "u")
	if err != nil {
		t.Fatal(err)
	}
	v[0] = 99
	if again, _ := a.Values("task", "u"); again[0] != 0.1 {
		t.Error("Values must return a copy")
	}
	if empty, err := a.Values("prerecord", "shortcut"); err != nil || len(empty) != 0 {
		t.Errorf("expected an empty list for an untouched key, got %v (%v)", empty, err)
	}
	if got := a.Report(); len(got) != 2 || len(got["prerecord"]) != 2 {
		t.Errorf("report dropped keys: %v", got)
	}
}

func TestEventEdges(t *testing.T) {
	tests := []struct {
		name        string
		start, stop float64
		dt          float64
		want        int
	}{
		{name: "exact", start: 1, stop: 1.5, dt: 0.125, want: 5},
		{name: "ratio just under a whole number", start: 0, stop: 0.3, dt: 0.1, want: 4},
		{name: "partial last bin kept", start: 0, stop: 0.09, dt: 0.025, want: 5},
		{name: "shorter than dt", start: 2, stop: 2.01, dt: 0.025, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges := eventEdges(tt.start, tt.stop, tt.dt)
			if len(edges) != tt.want {
				t.Fatalf("expected %d edges, got %v", tt.want, edges)
			}
			if edges[0] != tt.start {
				t.Errorf("edges must start at the event start, got %v", edges[0])
			}
			last := edges[len(edges)-1]
			if last < tt.stop-1e-9 || last-tt.dt >= tt.stop-1e-9 {
				t.Errorf("last edge %v must close the event at %v within one bin", last, tt.stop)
			}
		})
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-12
}

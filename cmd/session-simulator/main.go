// Package main writes a deterministic synthetic session for smoke runs of swrdecode.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/swrdecode/internal/log"
	"github.com/chrissnell/swrdecode/internal/synth"
)

func main() {
	cfg := synth.DefaultConfig()

	out := flag.String("out", "session.msgpack", "Path of the session file to write")
	flag.StringVar(&cfg.ID, "id", cfg.ID, "Session identifier")
	flag.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.Float64Var(&cfg.Duration, "duration", cfg.Duration, "Session length in seconds")
	flag.IntVar(&cfg.NumNeurons, "neurons", cfg.NumNeurons, "Number of place cells")
	flag.IntVar(&cfg.GridX, "grid-x", cfg.GridX, "Spatial bins along x")
	flag.IntVar(&cfg.GridY, "grid-y", cfg.GridY, "Spatial bins along y")
	flag.Float64Var(&cfg.Fs, "fs", cfg.Fs, "LFP sample rate (Hz)")
	flag.IntVar(&cfg.RipplesPerRest, "ripples-per-rest", cfg.RipplesPerRest, "Ripples generated in each rest period")
	flag.Float64Var(&cfg.ReplayRate, "replay-rate", cfg.ReplayRate, "Peak firing rate added during replay (Hz)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	g, err := synth.NewGenerator(cfg)
	if err != nil {
		log.Fatalf("Invalid simulator settings: %v", err)
	}
	sess, ripples, err := g.Session()
	if err != nil {
		log.Fatalf("Failed to generate session: %v", err)
	}
	if err := sess.Save(*out); err != nil {
		log.Fatalf("Failed to write session: %v", err)
	}

	log.Infow("wrote synthetic session",
		"path", *out,
		"session", sess.ID,
		"neurons", len(sess.Spikes),
		"samples", sess.LFP.NumSamples(),
		"ripples", len(ripples))
}

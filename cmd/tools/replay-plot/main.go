// Package main replays a detection recording through the tracker and writes
// a trajectory plot plus a track summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/headcount/internal/config"
	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/outofrange"
	"github.com/banshee-data/headcount/internal/replay"
	"github.com/banshee-data/headcount/internal/tracking"
)

// Config holds the command line options.
type Config struct {
	Input      string
	ConfigFile string
	OutputDir  string
	OutputJSON string
	OutOfRange bool
	Trail      int
	Verbose    bool
}

func parseFlags(args []string) (Config, error) {
	cfg := Config{}
	fs := flag.NewFlagSet("replay-plot", flag.ContinueOnError)

	fs.StringVar(&cfg.Input, "input", "", "Path to the detection recording (JSON lines)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Tuning configuration JSON (defaults when empty)")
	fs.StringVar(&cfg.OutputDir, "output", ".", "Output directory for the plot")
	fs.StringVar(&cfg.OutputJSON, "json", "", "Output JSON filename for the summary")
	fs.BoolVar(&cfg.OutOfRange, "oor", true, "Enable out-of-range compensation")
	fs.IntVar(&cfg.Trail, "trail", replay.DefaultTrailLength, "Positions kept per track")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.Input == "" {
		return cfg, fmt.Errorf("input recording is required")
	}
	return cfg, nil
}

// replayOptions builds the replay options from the tuning file.
func replayOptions(cfg Config) (replay.Options, error) {
	tuning := config.EmptyTuningConfig()
	if cfg.ConfigFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(cfg.ConfigFile)
		if err != nil {
			return replay.Options{}, err
		}
	}

	opts := replay.Options{
		Tracking:    tracking.ConfigFromTuning(tuning),
		ChainLength: tuning.GetChainLength(),
		TrailLength: cfg.Trail,
	}
	if cfg.OutOfRange {
		oor := outofrange.ConfigFromTuning(tuning)
		oor.Enabled = true
		opts.OutOfRange = &oor
	}
	return opts, nil
}

func run(ctx context.Context, cfg Config, stdout io.Writer) error {
	f, err := os.Open(cfg.Input)
	if err != nil {
		return err
	}
	defer f.Close()

	rec, err := replay.ReadRecording(f)
	if err != nil {
		return err
	}
	opts, err := replayOptions(cfg)
	if err != nil {
		return err
	}

	res, err := replay.Run(ctx, rec, opts)
	if err != nil {
		return err
	}
	summary := replay.Summarize(res)
	if err := summary.WriteText(stdout); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	base := filepath.Base(cfg.Input)
	base = base[:len(base)-len(filepath.Ext(base))]
	plotPath := filepath.Join(cfg.OutputDir, base+"-tracks.png")
	if err := replay.SaveTrajectoryPlot(res, plotPath); err != nil {
		return err
	}
	log.Printf("wrote %s", plotPath)

	if cfg.OutputJSON != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		jsonPath := filepath.Join(cfg.OutputDir, cfg.OutputJSON)
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return err
		}
		log.Printf("wrote %s", jsonPath)
	}
	return nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	monitoring.SetVerbose(cfg.Verbose)

	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

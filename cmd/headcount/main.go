package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/headcount/internal/api"
	"github.com/banshee-data/headcount/internal/config"
	"github.com/banshee-data/headcount/internal/db"
	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/outofrange"
	"github.com/banshee-data/headcount/internal/pipeline"
	"github.com/banshee-data/headcount/internal/replay"
	"github.com/banshee-data/headcount/internal/serialmux"
	"github.com/banshee-data/headcount/internal/timeutil"
	"github.com/banshee-data/headcount/internal/tracking"
	"github.com/banshee-data/headcount/internal/version"
)

var (
	configFile  = flag.String("config", config.DefaultConfigPath, "Path to the tuning configuration JSON")
	dbPath      = flag.String("db", "headcount.db", "Path to the counts database")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "", "Serial port for the counter link (empty disables it)")
	baudRate    = flag.Int("baud", serialmux.DefaultBaudRate, "Serial port baud rate")
	input       = flag.String("input", "", "Detection recording to play as the frame source")
	loop        = flag.Bool("loop", false, "Restart the recording when it ends")
	pace        = flag.Bool("pace", true, "Play the recording at its recorded rate")
	verbose     = flag.Bool("verbose", false, "Enable per-frame debug logging")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// settingsFromConfig returns the per-frame settings of the configured site.
func settingsFromConfig(cfg *config.TuningConfig) pipeline.Settings {
	return pipeline.Settings{
		DoorThreshold:          cfg.GetDoorThreshold(),
		MinYGap:                cfg.GetMinYGap(),
		InvertDirection:        cfg.GetInvertDirection(),
		MotionDetectionEnabled: cfg.GetMotionDetectionEnabled(),
		DoorOpenEnabled:        cfg.GetDoorOpenEnabled(),
		SkipIdenticalFrames:    cfg.GetSkipIdenticalFrames(),
	}
}

// restoreCounters seeds the tracker with the last persisted counters.
func restoreCounters(ctx context.Context, store db.CountStore, tr *tracking.Tracker, chainLength int) error {
	in, out, ok, err := store.LatestCounters(ctx)
	if err != nil {
		return fmt.Errorf("load counters: %w", err)
	}
	if !ok {
		in, out = 0, 0
	}
	capacity := tr.Init(in, out, chainLength)
	log.Printf("tracker initialised: in=%d out=%d capacity=%d", in, out, capacity)
	return nil
}

func openSerial(handler *serialmux.CommandHandler) (serialmux.Mux, error) {
	if *port == "" {
		log.Print("serial link disabled")
		return serialmux.NewDisabledSerialMux(), nil
	}
	m, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate}, handler)
	if err != nil {
		return nil, err
	}
	log.Printf("serial link open on %s", *port)
	return m, nil
}

// noDetections is the detector used when no frame source is configured.
func noDetections(context.Context, *frame.DisparityMap, *frame.Masks) ([]frame.Detection, error) {
	return nil, nil
}

func loadRecording(path string) (*replay.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return replay.ReadRecording(f)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr := tracking.NewTracker(tracking.ConfigFromTuning(cfg))
	if err := restoreCounters(ctx, store, tr, cfg.GetChainLength()); err != nil {
		log.Fatalf("failed to restore counters: %v", err)
	}
	defer tr.Deinit()

	oor := outofrange.NewManager(outofrange.ConfigFromTuning(cfg))

	handler := serialmux.NewCommandHandler(tr, store, "serial")
	link, err := openSerial(handler)
	if err != nil {
		log.Fatalf("failed to open serial port: %v", err)
	}
	defer link.Close()

	var rec *replay.Recording
	var feeder *replay.Feeder
	var detector pipeline.Detector = pipeline.DetectorFunc(noDetections)
	if *input != "" {
		rec, err = loadRecording(*input)
		if err != nil {
			log.Fatalf("failed to read recording: %v", err)
		}
		feeder = replay.NewFeeder(rec)
		feeder.Pace = *pace
		feeder.Loop = *loop
		detector = feeder
	} else {
		log.Print("no frame source configured, serving stored counters only")
	}

	clock := timeutil.RealClock{}
	proc, err := pipeline.NewProcessor(pipeline.Options{
		Tracker:    tr,
		OutOfRange: oor,
		Detector:   detector,
		Sink:       pipeline.MultiSink{store, link},
		Clock:      clock,
		Settings:   settingsFromConfig(cfg),
	})
	if err != nil {
		log.Fatalf("failed to create processor: %v", err)
	}

	var wg sync.WaitGroup

	// serial monitor routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// counter snapshot routine
	flusher := pipeline.NewFlusher(clock, cfg.GetFlushInterval(), tr, store)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := flusher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("flusher stopped: %v", err)
		}
		log.Print("flush routine terminated")
	}()

	// frame source routine
	if feeder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("playing %d records from %s", len(rec.Records), *input)
			if err := feeder.Play(ctx, proc); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("playback stopped: %v", err)
			}
			log.Print("playback routine terminated")
		}()
	}

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.Options{
			Counters:   tr,
			OutOfRange: oor,
			Stats:      proc,
			History:    store,
			Commands:   serialmux.NewCommandHandler(tr, store, "http"),
			Clock:      clock,
		}).ServeMux()
		store.AttachAdminRoutes(mux)
		link.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

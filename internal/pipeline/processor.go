package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/outofrange"
	"github.com/banshee-data/headcount/internal/timeutil"
	"github.com/banshee-data/headcount/internal/tracking"
)

// Options configures a Processor. Tracker and Detector are required.
type Options struct {
	Tracker    *tracking.Tracker
	OutOfRange *outofrange.Manager // nil disables compensation
	Detector   Detector
	Sink       EventSink // nil drops events after counting
	Clock      timeutil.Clock
	Settings   Settings
}

// Stats are cumulative frame loop counters.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Skipped      uint64 `json:"skipped"`
	Injected     uint64 `json:"injected"`
	Events       uint64 `json:"events"`
	DetectErrors uint64 `json:"detect_errors"`
	SinkErrors   uint64 `json:"sink_errors"`
}

// Processor owns the frame loop. Process must be called from a single
// goroutine; settings, stats and door operations are safe from any.
type Processor struct {
	tracker  *tracking.Tracker
	oor      *outofrange.Manager
	detector Detector
	sink     EventSink
	clock    timeutil.Clock

	prevDets []frame.Detection

	mu       sync.Mutex // guards the fields below
	settings Settings
	stats    Stats
	guard    frame.DuplicateGuard
	width    int // geometry of the last processed frame
	height   int
}

// NewProcessor validates opts and builds a Processor.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Tracker == nil {
		return nil, errors.New("pipeline: tracker is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Processor{
		tracker:  opts.Tracker,
		oor:      opts.OutOfRange,
		detector: opts.Detector,
		sink:     opts.Sink,
		clock:    clock,
		settings: opts.Settings,
	}, nil
}

// Settings returns the current runtime settings.
func (p *Processor) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings replaces the runtime settings from the next frame on.
func (p *Processor) SetSettings(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.SkipIdenticalFrames != p.settings.SkipIdenticalFrames {
		p.guard.Reset()
	}
	p.settings = s
}

// Stats returns a copy of the frame loop counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Processor) frameParams(s Settings, f Frame, vb *tracking.VirtualBlob) tracking.FrameParams {
	return tracking.FrameParams{
		Width:                  f.Disparity.Width,
		Height:                 f.Disparity.Height,
		DoorThreshold:          s.DoorThreshold,
		InvertDirection:        s.InvertDirection,
		MinYGap:                s.MinYGap,
		MotionSeen:             f.MotionSeen,
		MotionDetectionEnabled: s.MotionDetectionEnabled,
		DoorOpenEnabled:        s.DoorOpenEnabled,
		DoorTransition:         f.DoorTransition,
		VirtualBlob:            vb,
	}
}

// Process runs one frame through the loop and returns the count events it
// produced. A skipped duplicate frame returns no events and no error. Sink
// failures are returned after the tracker has counted, so counters never
// depend on storage health.
func (p *Processor) Process(ctx context.Context, f Frame) ([]tracking.CountEvent, error) {
	if f.Disparity == nil {
		return nil, fmt.Errorf("frame %d: missing disparity map", f.Seq)
	}
	s, skip := p.begin(f)
	if skip {
		monitoring.Debugf("pipeline: frame %d identical to previous, skipped", f.Seq)
		return nil, nil
	}

	var vb *tracking.VirtualBlob
	if p.oor != nil && f.Masks != nil {
		injected := p.oor.Handle(f.Disparity, f.Masks, p.prevDets, outofrange.Params{
			DoorThreshold: s.DoorThreshold,
			MaskPercent:   f.MaskPercent,
		})
		if injected {
			vb = p.oor.VirtualBlob()
			p.bump(func(st *Stats) { st.Injected++ })
		}
	}

	dets, err := p.detector.Detect(ctx, f.Disparity, f.Masks)
	if err != nil {
		p.bump(func(st *Stats) { st.DetectErrors++ })
		return nil, fmt.Errorf("frame %d: detect: %w", f.Seq, err)
	}
	p.prevDets = append(p.prevDets[:0], dets...)

	events := p.tracker.Update(f.Disparity, dets, p.frameParams(s, f, vb))
	p.bump(func(st *Stats) {
		st.Frames++
		st.Events += uint64(len(events))
	})

	at := f.Time
	if at.IsZero() {
		at = p.clock.Now()
	}
	return events, p.deliver(ctx, at, events)
}

// begin snapshots the settings and runs the duplicate guard for f. It
// reports whether f is skipped.
func (p *Processor) begin(f Frame) (Settings, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.settings
	if s.SkipIdenticalFrames && p.guard.ShouldSkip(f.Disparity.Pix, f.Left) {
		p.stats.Skipped++
		return s, true
	}
	p.width, p.height = f.Disparity.Width, f.Disparity.Height
	return s, false
}

// doorParams returns the parameters of a door event, using the geometry of
// the last processed frame.
func (p *Processor) doorParams() tracking.FrameParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.settings
	return tracking.FrameParams{
		Width:           p.width,
		Height:          p.height,
		DoorThreshold:   s.DoorThreshold,
		InvertDirection: s.InvertDirection,
		MinYGap:         s.MinYGap,
		DoorOpenEnabled: s.DoorOpenEnabled,
	}
}

// CloseDoor resolves the tracked objects when the door closes. doorSide is
// the pool whose objects come through the door.
func (p *Processor) CloseDoor(ctx context.Context, doorSide tracking.Direction) ([]tracking.CountEvent, error) {
	events := p.tracker.CloseDoor(doorSide, p.doorParams())
	p.bump(func(st *Stats) { st.Events += uint64(len(events)) })
	if len(events) > 0 {
		monitoring.Logf("pipeline: door closed, %d objects counted", len(events))
	}
	return events, p.deliver(ctx, p.clock.Now(), events)
}

// DoorOpened lets objects already inside the frame when the door opens be
// counted.
func (p *Processor) DoorOpened() {
	p.tracker.ForceTwoStepsOnDoorOpen(p.doorParams())
}

// Run processes frames until the channel closes or ctx is done. Per-frame
// errors are logged and do not stop the loop.
func (p *Processor) Run(ctx context.Context, frames <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := p.Process(ctx, f); err != nil {
				monitoring.Logf("pipeline: %v", err)
			}
		}
	}
}

func (p *Processor) deliver(ctx context.Context, at time.Time, events []tracking.CountEvent) error {
	if p.sink == nil || len(events) == 0 {
		return nil
	}
	var errs []error
	for _, ev := range events {
		if err := p.sink.RecordCount(ctx, uuid.New(), at, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		p.bump(func(st *Stats) { st.SinkErrors += uint64(len(errs)) })
		return fmt.Errorf("deliver count events: %w", errors.Join(errs...))
	}
	return nil
}

func (p *Processor) bump(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

package replay

import (
	"context"
	"time"

	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/pipeline"
	"github.com/banshee-data/headcount/internal/tracking"
)

// Feeder turns the records of a recording into pipeline frames. It is also
// the pipeline's detector: Detect returns the detections stored with the
// record being processed.
type Feeder struct {
	rec     *Recording
	current *Record
	dm      *frame.DisparityMap
	masks   *frame.Masks

	// Pace sleeps between records so they are played back at the rate
	// they were recorded.
	Pace bool
	// Loop restarts the recording when it ends. Only used by Play.
	Loop bool
}

// NewFeeder returns a Feeder for rec. The disparity map and masks are
// reused across records.
func NewFeeder(rec *Recording) *Feeder {
	return &Feeder{
		rec:   rec,
		dm:    frame.NewDisparityMap(rec.Header.Width, rec.Header.Height),
		masks: frame.NewMasks(rec.Header.Width, rec.Header.Height),
	}
}

// Detect implements pipeline.Detector.
func (f *Feeder) Detect(context.Context, *frame.DisparityMap, *frame.Masks) ([]frame.Detection, error) {
	if f.current == nil {
		return nil, nil
	}
	return f.current.ChainDetections(f.rec.Header.StrideOf()), nil
}

// Load makes r the current record and returns the frame built from it.
func (f *Feeder) Load(r *Record) pipeline.Frame {
	f.current = r
	clear(f.dm.Pix)
	clear(f.masks.Black)
	clear(f.masks.Background)
	DecodeRuns(r.Black, f.masks.Black)
	DecodeRuns(r.Background, f.masks.Background)

	fr := pipeline.Frame{
		Seq:            r.Seq,
		Disparity:      f.dm,
		Masks:          f.masks,
		MotionSeen:     r.MotionSeen,
		DoorTransition: r.DoorTransition,
	}
	if r.UnixNanos != 0 {
		fr.Time = time.Unix(0, r.UnixNanos)
	}
	return fr
}

// OpenDoor signals a door opening stored with r, if any. It runs before the
// record's frame is processed.
func (f *Feeder) OpenDoor(proc *pipeline.Processor, r *Record) {
	if r.DoorOpen {
		proc.DoorOpened()
	}
}

// CloseDoor resolves a door closure stored with r, if any.
func (f *Feeder) CloseDoor(ctx context.Context, proc *pipeline.Processor, r *Record) ([]tracking.CountEvent, error) {
	if r.DoorClose == "" {
		return nil, nil
	}
	side, err := parseSide(r.DoorClose)
	if err != nil {
		return nil, err
	}
	return proc.CloseDoor(ctx, side)
}

// Play feeds every record through proc until the recording ends or ctx is
// done. Per-record errors are logged and do not stop playback.
func (f *Feeder) Play(ctx context.Context, proc *pipeline.Processor) error {
	for {
		var last int64
		for i := range f.rec.Records {
			r := &f.rec.Records[i]
			if f.Pace && last != 0 && r.UnixNanos > last {
				if err := sleep(ctx, time.Duration(r.UnixNanos-last)); err != nil {
					return err
				}
			}
			last = r.UnixNanos
			if err := ctx.Err(); err != nil {
				return err
			}

			f.OpenDoor(proc, r)
			if _, err := proc.Process(ctx, f.Load(r)); err != nil {
				monitoring.Logf("replay: record %d: %v", r.Seq, err)
			}
			if _, err := f.CloseDoor(ctx, proc, r); err != nil {
				monitoring.Logf("replay: record %d: door close: %v", r.Seq, err)
			}
		}
		if !f.Loop || len(f.rec.Records) == 0 {
			return nil
		}
		monitoring.Debugf("replay: recording finished, restarting")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

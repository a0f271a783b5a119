package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmharper/ringbuffer"

	"github.com/banshee-data/headcount/internal/outofrange"
	"github.com/banshee-data/headcount/internal/pipeline"
	"github.com/banshee-data/headcount/internal/tracking"
)

// DefaultTrailLength is the number of positions kept per track.
const DefaultTrailLength = 256

// Options configures a replay.
type Options struct {
	Tracking    tracking.Config
	OutOfRange  *outofrange.Config // nil disables compensation
	Settings    pipeline.Settings  // door threshold and direction default to the header
	ChainLength int
	TrailLength int
}

// Point is one observed position of a track.
type Point struct {
	Seq    uint64
	X, Y   int
	Height int
}

// Track is the history of one tracked object.
type Track struct {
	ID       uint64
	From     tracking.Direction
	FirstSeq uint64
	LastSeq  uint64
	Frames   int // frames the object was matched in
	Counted  bool
	Entered  bool
	FirstY   int

	trail ringbuffer.RingP[Point]
}

// Trail returns the most recent positions, oldest first.
func (t *Track) Trail() []Point {
	out := make([]Point, t.trail.Len())
	for i := range out {
		out[i] = t.trail.Peek(i)
	}
	return out
}

// Result is the outcome of a replay.
type Result struct {
	Header Header
	Events []tracking.CountEvent
	In     int
	Out    int
	Tracks []*Track // ordered by ID
	Stats  pipeline.Stats
}

func parseSide(s string) (tracking.Direction, error) {
	switch s {
	case "high":
		return tracking.FromHigh, nil
	case "low":
		return tracking.FromLow, nil
	}
	return 0, fmt.Errorf("invalid door side %q", s)
}

// Run replays rec through a fresh tracker and returns every count and track.
func Run(ctx context.Context, rec *Recording, opts Options) (*Result, error) {
	h := rec.Header
	tr := tracking.NewTracker(opts.Tracking)
	tr.Init(0, 0, max(opts.ChainLength, 1))

	var mgr *outofrange.Manager
	if opts.OutOfRange != nil {
		mgr = outofrange.NewManager(*opts.OutOfRange)
	}

	settings := opts.Settings
	if settings.DoorThreshold == 0 {
		settings.DoorThreshold = h.DoorThreshold
	}
	settings.InvertDirection = settings.InvertDirection || h.Invert

	feeder := NewFeeder(rec)
	proc, err := pipeline.NewProcessor(pipeline.Options{
		Tracker:    tr,
		OutOfRange: mgr,
		Detector:   feeder,
		Settings:   settings,
	})
	if err != nil {
		return nil, err
	}

	trailLen := opts.TrailLength
	if trailLen <= 0 {
		trailLen = DefaultTrailLength
	}
	tracks := make(map[uint64]*Track)
	res := &Result{Header: h}

	for i := range rec.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := &rec.Records[i]
		feeder.OpenDoor(proc, r)
		events, err := proc.Process(ctx, feeder.Load(r))
		if err != nil {
			return nil, err
		}
		observe(tracks, tr, r.Seq, trailLen)

		closed, err := feeder.CloseDoor(ctx, proc, r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.Seq, err)
		}
		events = append(events, closed...)
		for _, ev := range events {
			if t, ok := tracks[ev.ObjectID]; ok {
				t.Counted = true
				t.Entered = ev.Entered
			}
		}
		res.Events = append(res.Events, events...)
	}

	res.In, res.Out = tr.Counters()
	res.Stats = proc.Stats()
	for _, t := range tracks {
		res.Tracks = append(res.Tracks, t)
	}
	sort.Slice(res.Tracks, func(a, b int) bool { return res.Tracks[a].ID < res.Tracks[b].ID })
	return res, nil
}

// observe appends the position of every object matched this frame to its
// track. Objects moved between pools on door closure keep their track.
func observe(tracks map[uint64]*Track, tr *tracking.Tracker, seq uint64, trailLen int) {
	for _, d := range []tracking.Direction{tracking.FromHigh, tracking.FromLow} {
		for _, o := range tr.Objects(d) {
			if !o.TrackedThisFrame {
				continue
			}
			t, ok := tracks[o.ID]
			if !ok {
				t = &Track{
					ID:       o.ID,
					From:     d,
					FirstSeq: seq,
					FirstY:   o.FirstY,
					trail:    ringbuffer.NewRingP[Point](trailLen),
				}
				tracks[o.ID] = t
			}
			t.LastSeq = seq
			t.Frames++
			t.trail.Add(Point{Seq: seq, X: o.X, Y: o.Y, Height: o.Height})
		}
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/outofrange"
	"github.com/banshee-data/headcount/internal/testutil"
	"github.com/banshee-data/headcount/internal/timeutil"
	"github.com/banshee-data/headcount/internal/tracking"
)

const (
	testWidth     = testutil.SceneWidth
	testHeight    = testutil.SceneHeight
	testThreshold = testutil.SceneThreshold
)

var testEpoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// scriptedDetector returns one scripted detection list per call, then none.
type scriptedDetector struct {
	frames [][]frame.Detection
	calls  int
	err    error
}

func (d *scriptedDetector) Detect(ctx context.Context, m *frame.DisparityMap, masks *frame.Masks) ([]frame.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	i := d.calls
	d.calls++
	if i < len(d.frames) {
		return d.frames[i], nil
	}
	return nil, nil
}

type recordedEvent struct {
	id uuid.UUID
	at time.Time
	ev tracking.CountEvent
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (s *recordingSink) RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{id: id, at: at, ev: ev})
	return s.err
}

func newFrame(seq uint64) Frame {
	return Frame{
		Seq:       seq,
		Disparity: frame.NewDisparityMap(testWidth, testHeight),
		Masks:     frame.NewMasks(testWidth, testHeight),
	}
}

func newTestProcessor(t *testing.T, det Detector, sink EventSink, clock timeutil.Clock) (*Processor, *tracking.Tracker) {
	t.Helper()
	tr := tracking.NewTracker(tracking.DefaultConfig())
	p, err := NewProcessor(Options{
		Tracker:  tr,
		Detector: det,
		Sink:     sink,
		Clock:    clock,
		Settings: Settings{DoorThreshold: testThreshold},
	})
	require.NoError(t, err)
	return p, tr
}

func TestNewProcessor_RequiresTrackerAndDetector(t *testing.T) {
	_, err := NewProcessor(Options{Detector: &scriptedDetector{}})
	assert.Error(t, err)

	_, err = NewProcessor(Options{Tracker: tracking.NewTracker(tracking.DefaultConfig())})
	assert.Error(t, err)
}

func TestProcess_CountsCrossingAndDeliversEvent(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	sink := &recordingSink{}
	p, tr := newTestProcessor(t, &scriptedDetector{frames: testutil.Crossing(80)}, sink, clock)

	ctx := context.Background()
	var events []tracking.CountEvent
	for i := 0; i < len(testutil.Crossing(80)); i++ {
		evs, err := p.Process(ctx, newFrame(uint64(i)))
		require.NoError(t, err)
		events = append(events, evs...)
	}

	require.Len(t, events, 1)
	assert.True(t, events[0].Entered)
	in, out := tr.Counters()
	assert.Equal(t, 1, in)
	assert.Equal(t, 0, out)

	require.Len(t, sink.events, 1)
	assert.NotEqual(t, uuid.Nil, sink.events[0].id)
	assert.Equal(t, testEpoch, sink.events[0].at, "zero frame time falls back to the clock")
	assert.Equal(t, events[0], sink.events[0].ev)

	st := p.Stats()
	assert.Equal(t, uint64(len(testutil.Crossing(80))), st.Frames)
	assert.Equal(t, uint64(1), st.Events)
}

func TestProcess_UsesFrameTime(t *testing.T) {
	sink := &recordingSink{}
	p, _ := newTestProcessor(t, &scriptedDetector{frames: testutil.Crossing(80)}, sink, timeutil.NewMockClock(testEpoch))

	stamp := testEpoch.Add(time.Hour)
	for i := 0; i < len(testutil.Crossing(80)); i++ {
		f := newFrame(uint64(i))
		f.Time = stamp
		_, err := p.Process(context.Background(), f)
		require.NoError(t, err)
	}
	require.Len(t, sink.events, 1)
	assert.Equal(t, stamp, sink.events[0].at)
}

func TestProcess_SkipsIdenticalFrames(t *testing.T) {
	det := &scriptedDetector{}
	p, _ := newTestProcessor(t, det, nil, nil)
	p.SetSettings(Settings{DoorThreshold: testThreshold, SkipIdenticalFrames: true})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := p.Process(ctx, newFrame(uint64(i)))
		require.NoError(t, err)
	}

	// First frame runs, two repeats are skipped, the third repeat runs.
	st := p.Stats()
	assert.Equal(t, uint64(2), st.Skipped)
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, 2, det.calls)
}

func TestProcess_DuplicatesProcessedWhenGuardOff(t *testing.T) {
	det := &scriptedDetector{}
	p, _ := newTestProcessor(t, det, nil, nil)

	for i := 0; i < 4; i++ {
		_, err := p.Process(context.Background(), newFrame(uint64(i)))
		require.NoError(t, err)
	}
	assert.Zero(t, p.Stats().Skipped)
	assert.Equal(t, 4, det.calls)
}

func TestProcess_DetectorError(t *testing.T) {
	boom := errors.New("boom")
	p, _ := newTestProcessor(t, &scriptedDetector{err: boom}, nil, nil)

	_, err := p.Process(context.Background(), newFrame(7))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), p.Stats().DetectErrors)
	assert.Zero(t, p.Stats().Frames)
}

func TestProcess_MissingDisparity(t *testing.T) {
	p, _ := newTestProcessor(t, &scriptedDetector{}, nil, nil)
	_, err := p.Process(context.Background(), Frame{Seq: 1})
	assert.Error(t, err)
}

func TestProcess_SinkErrorStillCounts(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	p, tr := newTestProcessor(t, &scriptedDetector{frames: testutil.Crossing(80)}, sink, nil)

	var sawErr bool
	for i := 0; i < len(testutil.Crossing(80)); i++ {
		if _, err := p.Process(context.Background(), newFrame(uint64(i))); err != nil {
			sawErr = true
		}
	}
	assert.True(t, sawErr)
	in, _ := tr.Counters()
	assert.Equal(t, 1, in)
	assert.Equal(t, uint64(1), p.Stats().SinkErrors)
}

func TestProcess_OutOfRangeUsesPreviousDetections(t *testing.T) {
	row, col, radius := 30, 80, 15
	det := &scriptedDetector{frames: [][]frame.Detection{
		{{X: col, Y: row, Height: 40}},
	}}
	tr := tracking.NewTracker(tracking.DefaultConfig())
	mgr := outofrange.NewManager(outofrange.DefaultConfig())
	p, err := NewProcessor(Options{
		Tracker:    tr,
		OutOfRange: mgr,
		Detector:   det,
		Settings:   Settings{DoorThreshold: testThreshold},
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Process(ctx, newFrame(0))
	require.NoError(t, err)
	assert.Zero(t, p.Stats().Injected, "no candidates on the first frame")

	f := newFrame(1)
	testutil.BlackDisk(f.Masks, testWidth, row, col, radius, true)
	_, err = p.Process(ctx, f)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), p.Stats().Injected)
	assert.True(t, mgr.Active())
	r, c := mgr.Centroid()
	assert.NotZero(t, f.Disparity.At(r, c), "virtual blob painted into the map")
}

func TestCloseDoor_DeliversEvents(t *testing.T) {
	sink := &recordingSink{}
	// Walk down past the door line and stop while still tracked.
	frames := testutil.Walk(80, 10, 110, 10, 80)
	p, tr := newTestProcessor(t, &scriptedDetector{frames: frames}, sink, timeutil.NewMockClock(testEpoch))

	for i := range frames {
		_, err := p.Process(context.Background(), newFrame(uint64(i)))
		require.NoError(t, err)
	}
	events, err := p.CloseDoor(context.Background(), tracking.FromHigh)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.True(t, events[0].OnDoorClose)
	require.Len(t, sink.events, 1)
	assert.Equal(t, testEpoch, sink.events[0].at)
	assert.Empty(t, tr.Objects(tracking.FromHigh))
}

func TestDoorOpened_SeedsObjectsInView(t *testing.T) {
	// One head just below the door line, still short of a crossing.
	p, tr := newTestProcessor(t, &scriptedDetector{frames: testutil.Walk(80, 62, 62, 4, 80)}, nil, nil)
	_, err := p.Process(context.Background(), newFrame(0))
	require.NoError(t, err)

	p.DoorOpened()

	objs := tr.Objects(tracking.FromLow)
	require.Len(t, objs, 1)
	assert.Equal(t, testHeight-1, objs[0].FirstY)
	assert.Equal(t, -tracking.DefaultConfig().MinCrossing(), objs[0].DeltaY)
}

func TestProcessor_SettingsAndDoorEventsWhileProcessing(t *testing.T) {
	const n = 200
	p, _ := newTestProcessor(t, &scriptedDetector{frames: testutil.Crossing(80)}, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			p.SetSettings(Settings{DoorThreshold: testThreshold, SkipIdenticalFrames: i%2 == 0})
			p.DoorOpened()
			_, _ = p.CloseDoor(ctx, tracking.FromHigh)
		}
	}()

	for i := 0; i < n; i++ {
		_, err := p.Process(ctx, newFrame(uint64(i)))
		require.NoError(t, err)
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, uint64(n), st.Frames+st.Skipped)
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	p, _ := newTestProcessor(t, &scriptedDetector{}, nil, nil)
	frames := make(chan Frame, 3)
	for i := 0; i < 3; i++ {
		frames <- newFrame(uint64(i))
	}
	close(frames)

	require.NoError(t, p.Run(context.Background(), frames))
	assert.Equal(t, uint64(3), p.Stats().Frames)
}

func TestRun_StopsOnContext(t *testing.T) {
	p, _ := newTestProcessor(t, &scriptedDetector{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, make(chan Frame))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	c := &recordingSink{}
	ms := MultiSink{a, nil, b, c}

	err := ms.RecordCount(context.Background(), uuid.New(), testEpoch, tracking.CountEvent{Entered: true})
	assert.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Len(t, c.events, 1, "later sinks still called after a failure")
}

func TestDetectorFunc(t *testing.T) {
	want := []frame.Detection{{X: 1, Y: 2, Height: 3}}
	var d Detector = DetectorFunc(func(ctx context.Context, m *frame.DisparityMap, masks *frame.Masks) ([]frame.Detection, error) {
		return want, nil
	})
	got, err := d.Detect(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

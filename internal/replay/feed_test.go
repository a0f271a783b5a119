package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headcount/internal/pipeline"
	"github.com/banshee-data/headcount/internal/testutil"
	"github.com/banshee-data/headcount/internal/tracking"
)

func newFeederProcessor(t *testing.T, rec *Recording) (*Feeder, *tracking.Tracker, *pipeline.Processor) {
	t.Helper()
	tr := tracking.NewTracker(tracking.DefaultConfig())
	tr.Init(0, 0, 1)
	feeder := NewFeeder(rec)
	proc, err := pipeline.NewProcessor(pipeline.Options{
		Tracker:  tr,
		Detector: feeder,
		Settings: pipeline.Settings{DoorThreshold: rec.Header.DoorThreshold},
	})
	require.NoError(t, err)
	return feeder, tr, proc
}

func TestFeeder_DetectBeforeLoad(t *testing.T) {
	feeder := NewFeeder(recordingOf(nil))
	dets, err := feeder.Detect(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestFeeder_LoadDecodesMasks(t *testing.T) {
	rec := recordingOf(testutil.Idle(1))
	rec.Records[0].Black = []PixelRun{{Start: 3, Len: 2}}
	rec.Records[0].UnixNanos = 42
	rec.Records[0].MotionSeen = true

	feeder := NewFeeder(rec)
	f := feeder.Load(&rec.Records[0])
	assert.Equal(t, byte(1), f.Masks.Black[3])
	assert.Equal(t, byte(1), f.Masks.Black[4])
	assert.Equal(t, 2, f.Masks.BlackCount())
	assert.True(t, f.MotionSeen)
	assert.Equal(t, int64(42), f.Time.UnixNano())
}

func TestFeeder_Play(t *testing.T) {
	rec := recordingOf(testutil.Crossing(80))
	feeder, tr, proc := newFeederProcessor(t, rec)

	require.NoError(t, feeder.Play(context.Background(), proc))
	in, out := tr.Counters()
	assert.Equal(t, 1, in)
	assert.Equal(t, 0, out)
	assert.Equal(t, uint64(len(rec.Records)), proc.Stats().Frames)
}

func TestFeeder_PlayStopsOnCancel(t *testing.T) {
	rec := recordingOf(testutil.Idle(3))
	for i := range rec.Records {
		rec.Records[i].UnixNanos = int64(i+1) * int64(time.Hour)
	}
	feeder, _, proc := newFeederProcessor(t, rec)
	feeder.Pace = true
	feeder.Loop = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := feeder.Play(ctx, proc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(1), proc.Stats().Frames)
}

package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/timeutil"
)

// CounterSource reports the live counters, typically a *tracking.Tracker.
type CounterSource interface {
	Counters() (in, out int)
}

// SnapshotSaver stores counter snapshots, typically a *db.DB.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, at time.Time, in, out int) error
}

// Flusher periodically writes the live counters to a SnapshotSaver when
// they have changed since the last write.
type Flusher struct {
	src    CounterSource
	dst    SnapshotSaver
	clock  timeutil.Clock
	ticker timeutil.Ticker

	flushed         bool
	lastIn, lastOut int
}

// NewFlusher starts the flush ticker immediately so ticks are not lost
// between construction and Run.
func NewFlusher(clock timeutil.Clock, interval time.Duration, src CounterSource, dst SnapshotSaver) *Flusher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Flusher{
		src:    src,
		dst:    dst,
		clock:  clock,
		ticker: clock.NewTicker(interval),
	}
}

// Flush writes a snapshot if the counters changed. force writes regardless.
func (f *Flusher) Flush(ctx context.Context, force bool) error {
	in, out := f.src.Counters()
	if !force && f.flushed && in == f.lastIn && out == f.lastOut {
		return nil
	}
	if err := f.dst.SaveSnapshot(ctx, f.clock.Now(), in, out); err != nil {
		return err
	}
	monitoring.Debugf("pipeline: flushed counters in=%d out=%d", in, out)
	f.flushed, f.lastIn, f.lastOut = true, in, out
	return nil
}

// Run flushes on every tick until ctx is done, then writes a final snapshot.
func (f *Flusher) Run(ctx context.Context) error {
	defer f.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// The run context is already cancelled; the final write gets its own.
			if err := f.Flush(context.Background(), false); err != nil {
				monitoring.Logf("pipeline: final counter flush failed: %v", err)
			}
			return ctx.Err()
		case <-f.ticker.C():
			if err := f.Flush(ctx, false); err != nil {
				monitoring.Logf("pipeline: counter flush failed: %v", err)
			}
		}
	}
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/headcount/internal/timeutil"
)

type fakeCounters struct {
	mu      sync.Mutex
	in, out int
}

func (f *fakeCounters) Counters() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in, f.out
}

func (f *fakeCounters) set(in, out int) {
	f.mu.Lock()
	f.in, f.out = in, out
	f.mu.Unlock()
}

type snapshot struct {
	at      time.Time
	in, out int
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []snapshot
	err   error
	ch    chan struct{}
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{ch: make(chan struct{}, 16)}
}

func (f *fakeSaver) SaveSnapshot(ctx context.Context, at time.Time, in, out int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, snapshot{at: at, in: in, out: out})
	f.ch <- struct{}{}
	return nil
}

func (f *fakeSaver) snapshots() []snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]snapshot(nil), f.saved...)
}

func TestFlusher_FlushOnlyOnChange(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	src := &fakeCounters{in: 2, out: 1}
	dst := newFakeSaver()
	f := NewFlusher(clock, time.Minute, src, dst)
	ctx := context.Background()

	if err := f.Flush(ctx, false); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := f.Flush(ctx, false); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := len(dst.snapshots()); got != 1 {
		t.Fatalf("Expected 1 snapshot for unchanged counters, got %d", got)
	}

	if err := f.Flush(ctx, true); err != nil {
		t.Fatalf("forced Flush failed: %v", err)
	}
	src.set(3, 1)
	if err := f.Flush(ctx, false); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	snaps := dst.snapshots()
	if len(snaps) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(snaps))
	}
	if snaps[2].in != 3 || snaps[2].out != 1 {
		t.Errorf("Unexpected last snapshot: %+v", snaps[2])
	}
	if !snaps[0].at.Equal(testEpoch) {
		t.Errorf("Snapshot time %v, want %v", snaps[0].at, testEpoch)
	}
}

func TestFlusher_FlushError(t *testing.T) {
	dst := newFakeSaver()
	dst.err = errors.New("locked")
	f := NewFlusher(timeutil.NewMockClock(testEpoch), time.Minute, &fakeCounters{}, dst)

	if err := f.Flush(context.Background(), false); err == nil {
		t.Fatal("Expected error from failing saver")
	}
	dst.err = nil
	if err := f.Flush(context.Background(), false); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := len(dst.snapshots()); got != 1 {
		t.Errorf("A failed flush must be retried, got %d snapshots", got)
	}
}

func TestFlusher_RunOnTicks(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	src := &fakeCounters{in: 1}
	dst := newFakeSaver()
	f := NewFlusher(clock, time.Minute, src, dst)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	clock.Advance(time.Minute)
	select {
	case <-dst.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick flush")
	}

	src.set(1, 1)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	snaps := dst.snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Expected tick and final snapshots, got %d", len(snaps))
	}
	if snaps[1].out != 1 {
		t.Errorf("Final snapshot should carry the latest counters: %+v", snaps[1])
	}
}

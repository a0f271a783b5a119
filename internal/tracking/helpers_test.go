package tracking

import (
	"testing"

	"github.com/banshee-data/headcount/internal/frame"
)

const (
	testWidth     = 160
	testHeight    = 120
	testThreshold = 60
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return DefaultConfig()
}

func testParams() FrameParams {
	return FrameParams{Width: testWidth, Height: testHeight, DoorThreshold: testThreshold}
}

func det(x, y int, h byte) frame.Detection {
	return frame.Detection{X: x, Y: y, Height: h, Width: 12, Length: 12}
}

// obj returns an established object at (x, y) with the given height.
func obj(id uint64, x, y, h int) TrackedObject {
	return TrackedObject{
		ID: id, X: x, Y: y, Height: h, MaxHeight: h,
		Life: 20, NumFrames: 2, FirstX: x, FirstY: y,
	}
}

// run feeds frames of detections through tr and collects every event.
func run(tr *Tracker, p FrameParams, frames ...[]frame.Detection) []CountEvent {
	var events []CountEvent
	for _, dets := range frames {
		events = append(events, tr.Update(nil, dets, p)...)
	}
	return events
}

func empty(n int) [][]frame.Detection {
	return make([][]frame.Detection, n)
}

// walk returns one single-detection frame per step from y0 to y1.
func walk(x, y0, y1, step int, h byte) [][]frame.Detection {
	var out [][]frame.Detection
	if y1 >= y0 {
		for y := y0; y <= y1; y += step {
			out = append(out, []frame.Detection{det(x, y, h)})
		}
	} else {
		for y := y0; y >= y1; y -= step {
			out = append(out, []frame.Detection{det(x, y, h)})
		}
	}
	return out
}

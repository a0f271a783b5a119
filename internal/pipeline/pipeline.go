// Package pipeline runs the per-frame work of a counter: duplicate frame
// skipping, out-of-range compensation, head detection, tracking and
// delivery of count events.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/tracking"
)

// Frame is one synchronised acquisition from the stereo sensor.
type Frame struct {
	Seq       uint64
	Time      time.Time // zero means "now" on the processor clock
	Disparity *frame.DisparityMap
	Left      []byte // left image, only compared by the duplicate guard
	Masks     *frame.Masks

	MotionSeen     bool
	DoorTransition bool
	MaskPercent    int // share of the frame hidden by the door mask
}

// Detector finds head candidates in a disparity map.
type Detector interface {
	Detect(ctx context.Context, m *frame.DisparityMap, masks *frame.Masks) ([]frame.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, m *frame.DisparityMap, masks *frame.Masks) ([]frame.Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, m *frame.DisparityMap, masks *frame.Masks) ([]frame.Detection, error) {
	return f(ctx, m, masks)
}

// EventSink receives every count event. id is unique per event.
type EventSink interface {
	RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error
}

// MultiSink fans an event out to several sinks. Every sink is called even
// when an earlier one fails.
type MultiSink []EventSink

func (m MultiSink) RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordCount(ctx, id, at, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Settings are the runtime-adjustable inputs of the frame loop.
type Settings struct {
	DoorThreshold          int  `json:"door_threshold"`
	MinYGap                int  `json:"min_y_gap"`
	InvertDirection        bool `json:"invert_direction"`
	MotionDetectionEnabled bool `json:"motion_detection_enabled"`
	DoorOpenEnabled        bool `json:"door_open_enabled"`
	SkipIdenticalFrames    bool `json:"skip_identical_frames"`
}

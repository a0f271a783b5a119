// Package replay reads recorded detection streams, runs them through the
// counting pipeline offline and summarises or plots the resulting tracks.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/headcount/internal/frame"
)

// Header is the first line of a recording.
type Header struct {
	Width         int  `json:"width"`
	Height        int  `json:"height"`
	DoorThreshold int  `json:"door_threshold"`
	Invert        bool `json:"invert,omitempty"`
	SensorWidth   int  `json:"sensor_width,omitempty"` // columns per chained sensor; Width when unset
}

// StrideOf returns the column count of one sensor of the chain.
func (h Header) StrideOf() int {
	if h.SensorWidth > 0 {
		return h.SensorWidth
	}
	return h.Width
}

// PixelRun is a span of flagged pixels [Start, Start+Len) in row-major order.
type PixelRun struct {
	Start int `json:"s"`
	Len   int `json:"n"`
}

// DetectionRecord is the stored form of a frame.Detection.
type DetectionRecord struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Height byte `json:"h"`
	Width  byte `json:"w,omitempty"`
	Length byte `json:"l,omitempty"`
}

// RawDetections is one sensor's detector output in its native parallel-array
// form: positions are row*stride+col and sizes hold (width, height) pairs.
type RawDetections struct {
	Positions []int `json:"pos"`
	Heights   []int `json:"h"`
	Sizes     []int `json:"size,omitempty"`
}

// Record is one recorded frame.
type Record struct {
	Seq            uint64            `json:"seq"`
	UnixNanos      int64             `json:"t,omitempty"`
	Detections     []DetectionRecord `json:"dets,omitempty"`
	Raw            []RawDetections   `json:"raw,omitempty"` // per chained sensor, used instead of dets when set
	MotionSeen     bool              `json:"motion,omitempty"`
	DoorTransition bool              `json:"door_transition,omitempty"`
	DoorOpen       bool              `json:"door_open,omitempty"`  // door opened before this frame
	DoorClose      string            `json:"door_close,omitempty"` // "high" or "low": door side that closed after this frame
	Black          []PixelRun        `json:"black,omitempty"`
	Background     []PixelRun        `json:"bg,omitempty"`
}

// Recording is a header plus its frames.
type Recording struct {
	Header  Header
	Records []Record
}

// maxLineBytes bounds a single JSON line; mask runs can make lines long.
const maxLineBytes = 16 << 20

// ReadRecording parses a JSON-lines recording.
func ReadRecording(r io.Reader) (*Recording, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)

	rec := &Recording{}
	line := 0
	haveHeader := false
	for scan.Scan() {
		line++
		b := scan.Bytes()
		if len(b) == 0 {
			continue
		}
		if !haveHeader {
			if err := json.Unmarshal(b, &rec.Header); err != nil {
				return nil, fmt.Errorf("line %d: header: %w", line, err)
			}
			if rec.Header.Width <= 0 || rec.Header.Height <= 0 {
				return nil, fmt.Errorf("line %d: invalid geometry %dx%d", line, rec.Header.Width, rec.Header.Height)
			}
			haveHeader = true
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec.Records = append(rec.Records, r)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if !haveHeader {
		return nil, errors.New("empty recording")
	}
	return rec, nil
}

// WriteRecording writes rec as JSON lines.
func WriteRecording(w io.Writer, rec *Recording) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(rec.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range rec.Records {
		if err := enc.Encode(&rec.Records[i]); err != nil {
			return fmt.Errorf("write record %d: %w", rec.Records[i].Seq, err)
		}
	}
	return nil
}

// FrameDetections converts the stored detections.
func (r *Record) FrameDetections() []frame.Detection {
	if len(r.Detections) == 0 {
		return nil
	}
	out := make([]frame.Detection, len(r.Detections))
	for i, d := range r.Detections {
		out[i] = frame.Detection{X: d.X, Y: d.Y, Height: d.Height, Width: d.Width, Length: d.Length}
	}
	return out
}

// ChainDetections decodes the raw per-sensor detector output of r and merges
// it into the coordinates of the whole chain. Records without raw output
// fall back to FrameDetections.
func (r *Record) ChainDetections(sensorWidth int) []frame.Detection {
	if len(r.Raw) == 0 {
		return r.FrameDetections()
	}
	parts := make([][]frame.Detection, len(r.Raw))
	for k, raw := range r.Raw {
		parts[k] = frame.DecodeDetections(raw.Positions, toBytes(raw.Heights), toBytes(raw.Sizes), sensorWidth)
	}
	return frame.MergeChain(parts, sensorWidth)
}

func toBytes(v []int) []byte {
	out := make([]byte, len(v))
	for i, x := range v {
		out[i] = byte(min(max(x, 0), 255))
	}
	return out
}

// RecordDetections converts detections to their stored form.
func RecordDetections(dets []frame.Detection) []DetectionRecord {
	if len(dets) == 0 {
		return nil
	}
	out := make([]DetectionRecord, len(dets))
	for i, d := range dets {
		out[i] = DetectionRecord{X: d.X, Y: d.Y, Height: d.Height, Width: d.Width, Length: d.Length}
	}
	return out
}

// EncodeRuns compresses a per-pixel flag plane into runs of set pixels.
func EncodeRuns(flags []byte) []PixelRun {
	var runs []PixelRun
	for i := 0; i < len(flags); {
		if flags[i] == 0 {
			i++
			continue
		}
		start := i
		for i < len(flags) && flags[i] != 0 {
			i++
		}
		runs = append(runs, PixelRun{Start: start, Len: i - start})
	}
	return runs
}

// DecodeRuns sets the pixels covered by runs in dst. Runs falling outside
// dst are clipped.
func DecodeRuns(runs []PixelRun, dst []byte) {
	for _, r := range runs {
		end := min(r.Start+r.Len, len(dst))
		for i := max(r.Start, 0); i < end; i++ {
			dst[i] = 1
		}
	}
}

package replay

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the tracks of a replay.
type Summary struct {
	Tracks  int `json:"tracks"`
	Counted int `json:"counted"`
	In      int `json:"in"`
	Out     int `json:"out"`

	MeanFrames   float64 `json:"mean_frames"`
	StdFrames    float64 `json:"std_frames"`
	MedianFrames float64 `json:"median_frames"`
	MeanTravel   float64 `json:"mean_travel"` // rows covered by counted tracks
	MeanHeight   float64 `json:"mean_height"`
}

// Summarize computes track statistics of res.
func Summarize(res *Result) Summary {
	s := Summary{Tracks: len(res.Tracks), In: res.In, Out: res.Out}
	if len(res.Tracks) == 0 {
		return s
	}

	frames := make([]float64, 0, len(res.Tracks))
	var travel, heights []float64
	for _, t := range res.Tracks {
		frames = append(frames, float64(t.Frames))
		trail := t.Trail()
		for _, p := range trail {
			heights = append(heights, float64(p.Height))
		}
		if !t.Counted {
			continue
		}
		s.Counted++
		if len(trail) > 0 {
			d := trail[len(trail)-1].Y - t.FirstY
			travel = append(travel, float64(max(d, -d)))
		}
	}

	s.MeanFrames, s.StdFrames = stat.MeanStdDev(frames, nil)
	sort.Float64s(frames)
	s.MedianFrames = stat.Quantile(0.5, stat.Empirical, frames, nil)
	if len(travel) > 0 {
		s.MeanTravel = stat.Mean(travel, nil)
	}
	if len(heights) > 0 {
		s.MeanHeight = stat.Mean(heights, nil)
	}
	return s
}

// WriteText prints s in a human readable form.
func (s Summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"tracks=%d counted=%d in=%d out=%d\nframes mean=%.1f std=%.1f median=%.0f\ntravel mean=%.1f rows, height mean=%.1f\n",
		s.Tracks, s.Counted, s.In, s.Out,
		s.MeanFrames, s.StdFrames, s.MedianFrames,
		s.MeanTravel, s.MeanHeight)
	return err
}

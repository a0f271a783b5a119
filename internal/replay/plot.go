package replay

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// TrajectoryPlot draws every track of res in image coordinates, row 0 at the
// top, with the door line as a dashed reference. Counted tracks are drawn
// thicker than the rest.
func TrajectoryPlot(res *Result) (*plot.Plot, error) {
	h := res.Header

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectories: in=%d out=%d tracks=%d", res.In, res.Out, len(res.Tracks))
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Row"
	p.X.Min, p.X.Max = 0, float64(h.Width)
	p.Y.Min, p.Y.Max = 0, float64(h.Height)
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	door, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: float64(h.DoorThreshold)},
		{X: float64(h.Width), Y: float64(h.DoorThreshold)},
	})
	if err != nil {
		return nil, err
	}
	door.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	door.Width = vg.Points(1)
	p.Add(door)
	p.Legend.Add("door line", door)

	for i, t := range res.Tracks {
		trail := t.Trail()
		if len(trail) < 2 {
			continue
		}
		pts := make(plotter.XYs, len(trail))
		for j, pt := range trail {
			pts[j] = plotter.XY{X: float64(pt.X), Y: float64(pt.Y)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		if t.Counted {
			line.Width = vg.Points(2.5)
			p.Legend.Add(fmt.Sprintf("#%d %s", t.ID, countedLabel(t.Entered)), line)
		}
		p.Add(line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func countedLabel(entered bool) string {
	if entered {
		return "in"
	}
	return "out"
}

// SaveTrajectoryPlot renders the trajectory plot to path. The image format
// follows the file extension (.png, .svg, .pdf).
func SaveTrajectoryPlot(res *Result, path string) error {
	p, err := TrajectoryPlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

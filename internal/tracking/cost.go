package tracking

import (
	"github.com/chewxy/math32"

	"github.com/banshee-data/headcount/internal/frame"
)

// edgeTolerance returns the extra height tolerance at (x, y). It is 0 at the
// image centre and rises towards EdgeTolMax at the borders, where
// perspective makes the disparity of a head noisier.
func (c Config) edgeTolerance(x, y, width, height int) int {
	if width <= 0 || height <= 0 || c.EdgeSigmaDiv <= 0 {
		return 0
	}
	sx := float32(width) / c.EdgeSigmaDiv
	sy := float32(height) / c.EdgeSigmaDiv
	dx := float32(x - width/2)
	dy := float32(y - height/2)
	g := math32.Exp(-(dx*dx/(2*sx*sx) + dy*dy/(2*sy*sy)))
	return int(c.EdgeTolMax * (1 - g))
}

// maxMove returns the largest per-frame displacement allowed for o.
func (c Config) maxMove(o *TrackedObject) int {
	return o.MaxHeight * c.MaxMovePercent / 100
}

// PairCost returns the cost of explaining detection d with object o, the
// squared pixel distance between them, and whether the pairing is possible
// at all. Impossible pairings report InfeasibleCost.
func (c Config) PairCost(o *TrackedObject, d frame.Detection, width, height int) (cost, dist2 int64, ok bool) {
	if o.Height <= 0 || !d.Trackable() {
		return InfeasibleCost, 0, false
	}
	dx := int64(d.X - o.X)
	dy := int64(d.Y - o.Y)
	dist2 = dx*dx + dy*dy

	maxD := int64(c.maxMove(o))
	if dist2 > maxD*maxD {
		return InfeasibleCost, dist2, false
	}

	h := int(d.Height)
	tol := c.HeightTolFloor +
		c.edgeTolerance(d.X, d.Y, width, height) +
		o.Height*c.HeightTolPercent/100 +
		o.MaxHeight*c.MaxHeightTolPercent/100
	if absInt(h-o.Height) > tol || absInt(h-o.MaxHeight) > tol {
		return InfeasibleCost, dist2, false
	}

	dh := int64(h - o.Height)
	cost = dist2 + dh*dh
	if cost >= InfeasibleCost {
		cost = InfeasibleCost - 1
	}
	return cost, dist2, true
}

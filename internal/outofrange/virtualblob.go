package outofrange

import (
	"github.com/chewxy/math32"

	"github.com/banshee-data/headcount/internal/frame"
)

// Template values, in disparity levels.
const (
	blobPeakLevel   = 15
	blobBorderLevel = 1
)

// blobTemplate is a square stamp of side 2R+1 holding a Gaussian disk of
// radius R with a dark ring on its rim. Pixels outside the disk are 0 and
// never written.
type blobTemplate struct {
	radius int
	pix    []byte
}

func newBlobTemplate(radius, border, minInteresting int) *blobTemplate {
	side := 2*radius + 1
	t := &blobTemplate{radius: radius, pix: make([]byte, side*side)}
	if radius <= 0 {
		return t
	}
	sigma := float32(radius) / 2
	lo := float32(minInteresting + frame.LevelStep)
	hi := float32(blobPeakLevel * frame.LevelStep)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := dx*dx + dy*dy
			if d2 > radius*radius {
				continue
			}
			i := (dy+radius)*side + dx + radius
			if d2 > (radius-border)*(radius-border) {
				t.pix[i] = blobBorderLevel * frame.LevelStep
				continue
			}
			g := math32.Exp(-float32(d2) / (2 * sigma * sigma))
			v := lo + (hi-lo)*g
			level := int(v) / frame.LevelStep
			t.pix[i] = byte(min(level, blobPeakLevel) * frame.LevelStep)
		}
	}
	return t
}

// at returns the template value for an offset (dy, dx) inside a blob of
// radius r, rescaling the offset to the template's own radius.
func (t *blobTemplate) at(dy, dx, r int) byte {
	ty := dy * t.radius / r
	tx := dx * t.radius / r
	side := 2*t.radius + 1
	return t.pix[(ty+t.radius)*side+tx+t.radius]
}

// CopyVirtualBlob stamps a blob of the given radius centred on (row, col)
// into m. The centre is pulled inside the tracking border so the whole
// blob fits. A pixel takes the blob value when the original is not an
// interesting disparity, is background-black, or is weaker than the blob.
// It returns the centre actually used.
func (mgr *Manager) CopyVirtualBlob(m *frame.DisparityMap, masks *frame.Masks, row, col, radius int) (int, int) {
	radius = min(radius, mgr.template.radius)
	if radius <= 0 {
		return row, col
	}
	border := mgr.cfg.TrackingBorder
	row = clampCentre(row, radius, border, m.Height)
	col = clampCentre(col, radius, border, m.Width)
	minInteresting := byte(min(mgr.cfg.MinInteresting(), 255))

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			v := mgr.template.at(dy, dx, radius)
			if v == 0 || !m.In(row+dy, col+dx) {
				continue
			}
			i := m.Idx(row+dy, col+dx)
			orig := m.Pix[i]
			if orig <= minInteresting || masks.Background[i] != 0 || orig < v {
				m.Pix[i] = v
			}
		}
	}
	return row, col
}

func clampCentre(c, radius, border, size int) int {
	lo := border + radius
	hi := size - 1 - border - radius
	if lo > hi {
		return size / 2
	}
	return min(max(c, lo), hi)
}

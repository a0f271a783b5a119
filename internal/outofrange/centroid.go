package outofrange

import (
	"math"

	"github.com/banshee-data/headcount/internal/frame"
)

// Window summarises the pixels of a square analysis window.
type Window struct {
	Row, Col int // weighted centroid, -1 when the window holds nothing

	Black       int // black pixels
	MaskedBlack int // black pixels that were also black in the background
	Interesting int // pixels above the minimum interesting disparity
}

// Valid reports whether the centroid could be computed.
func (w Window) Valid() bool { return w.Row >= 0 && w.Col >= 0 }

// MaskedPercent returns the share of black pixels that are background-black.
func (w Window) MaskedPercent() int {
	if w.Black == 0 {
		return 0
	}
	return w.MaskedBlack * 100 / w.Black
}

// WeightedCentroid analyses the window of the given radius around
// (row, col). Masked-black pixels are weighted by their distance from the
// vertical centre of the map, interesting pixels by their disparity, and the
// two partial centroids are averaged by pixel count.
func WeightedCentroid(m *frame.DisparityMap, masks *frame.Masks, row, col, radius, minInteresting int) Window {
	w := Window{Row: -1, Col: -1}
	r0, r1 := max(row-radius, 0), min(row+radius, m.Height-1)
	c0, c1 := max(col-radius, 0), min(col+radius, m.Width-1)
	half := m.Height / 2

	var bw, bwr, bwc int64 // masked-black weights
	var dw, dwr, dwc int64 // disparity weights
	for r := r0; r <= r1; r++ {
		rowWeight := int64(half + absInt(r-half))
		for c := c0; c <= c1; c++ {
			i := m.Idx(r, c)
			if masks.Black[i] != 0 {
				w.Black++
				if masks.Background[i] != 0 {
					w.MaskedBlack++
					bw += rowWeight
					bwr += rowWeight * int64(r)
					bwc += rowWeight * int64(c)
				}
			}
			if d := int(m.Pix[i]); d > minInteresting {
				w.Interesting++
				dw += int64(d)
				dwr += int64(d) * int64(r)
				dwc += int64(d) * int64(c)
			}
		}
	}

	nb, ni := int64(w.MaskedBlack), int64(w.Interesting)
	switch {
	case nb == 0 && ni == 0:
		return w
	case ni == 0:
		w.Row, w.Col = int(bwr/bw), int(bwc/bw)
	case nb == 0:
		w.Row, w.Col = int(dwr/dw), int(dwc/dw)
	default:
		br, bc := bwr/bw, bwc/bw
		dr, dc := dwr/dw, dwc/dw
		w.Row = int((br*nb + dr*ni) / (nb + ni))
		w.Col = int((bc*nb + dc*ni) / (nb + ni))
	}
	return w
}

// ComputeRay turns a pixel count into a blob radius by reading the count as
// the area of a circle, with an empirical 1.40 correction. It is at least 1
// for any non-zero count.
func ComputeRay(black, interesting int) int {
	n := black + interesting
	if n <= 0 {
		return 0
	}
	r := int(math.Floor(140 * math.Sqrt(float64(100*n)/314) / 100))
	return max(r, 1)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

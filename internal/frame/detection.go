package frame

// Detection is one head candidate produced by the external blob detector.
// It is valid for a single frame only.
type Detection struct {
	X      int  // column in the (possibly chained) map
	Y      int  // row
	Height byte // disparity-derived tallness, 0..127; 0 means not trackable
	Width  byte // blob width in pixels
	Length byte // blob height in pixels
}

// Trackable reports whether the detection may take part in tracking.
func (d Detection) Trackable() bool { return d.Height > 0 }

// DecodeDetections converts the detector's parallel-array output into
// detections. positions are encoded as row*stride+col and sizes holds
// (width, height) pairs. Entries beyond the shortest input are ignored.
func DecodeDetections(positions []int, heights []byte, sizes []byte, stride int) []Detection {
	n := len(positions)
	if len(heights) < n {
		n = len(heights)
	}
	if stride <= 0 {
		return nil
	}
	out := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		d := Detection{
			X:      positions[i] % stride,
			Y:      positions[i] / stride,
			Height: heights[i],
		}
		if 2*i+1 < len(sizes) {
			d.Width = sizes[2*i]
			d.Length = sizes[2*i+1]
		}
		out = append(out, d)
	}
	return out
}

// EncodePosition is the inverse of the position decoding in DecodeDetections.
func EncodePosition(x, y, stride int) int { return y*stride + x }

// MergeChain merges the partial detections of chained sensors into one
// wide-gate coordinate space. Sensor k of the chain covers columns
// [k*sensorWidth, (k+1)*sensorWidth).
func MergeChain(parts [][]Detection, sensorWidth int) []Detection {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]Detection, 0, total)
	for k, p := range parts {
		for _, d := range p {
			d.X += k * sensorWidth
			out = append(out, d)
		}
	}
	return out
}

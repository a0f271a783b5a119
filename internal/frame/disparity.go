package frame

// LevelStep is the byte distance between two quantised disparity levels.
// The stereo engine produces 16 levels spread over the byte range.
const LevelStep = 16

// DisparityMap is a mutable row-major byte grid. The counting engine reads
// it for out-of-range analysis and writes it when injecting a virtual blob
// or drawing debug crosses.
type DisparityMap struct {
	Width  int
	Height int
	Pix    []byte // len = Width * Height
}

// NewDisparityMap allocates a zeroed map.
func NewDisparityMap(width, height int) *DisparityMap {
	return &DisparityMap{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height),
	}
}

// Idx returns the Pix offset of (row, col).
func (m *DisparityMap) Idx(row, col int) int { return row*m.Width + col }

// In reports whether (row, col) lies inside the map.
func (m *DisparityMap) In(row, col int) bool {
	return row >= 0 && row < m.Height && col >= 0 && col < m.Width
}

// At returns the disparity at (row, col), or 0 outside the map.
func (m *DisparityMap) At(row, col int) byte {
	if !m.In(row, col) {
		return 0
	}
	return m.Pix[m.Idx(row, col)]
}

// Set writes v at (row, col); writes outside the map are ignored.
func (m *DisparityMap) Set(row, col int, v byte) {
	if !m.In(row, col) {
		return
	}
	m.Pix[m.Idx(row, col)] = v
}

// Clone returns a deep copy of the map.
func (m *DisparityMap) Clone() *DisparityMap {
	out := &DisparityMap{Width: m.Width, Height: m.Height, Pix: make([]byte, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Masks carries the per-pixel flags computed alongside the disparity map.
// A non-zero byte means the flag is set.
type Masks struct {
	// Black marks pixels the stereo engine could not measure this frame.
	Black []byte
	// Background marks pixels that were black in the learned background.
	Background []byte
}

// NewMasks allocates empty masks for a width x height frame.
func NewMasks(width, height int) *Masks {
	return &Masks{
		Black:      make([]byte, width*height),
		Background: make([]byte, width*height),
	}
}

// BlackCount returns the number of black pixels in the whole frame.
func (m *Masks) BlackCount() int {
	n := 0
	for _, v := range m.Black {
		if v != 0 {
			n++
		}
	}
	return n
}

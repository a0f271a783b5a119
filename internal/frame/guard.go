package frame

import "bytes"

// MaxIdenticalSkips bounds how many byte-identical frames in a row may be
// skipped, so a genuinely stalled source still produces output.
const MaxIdenticalSkips = 2

// DuplicateGuard detects frames that are byte-for-byte repeats of the
// previous one (disparity map and left image).
type DuplicateGuard struct {
	prevDisparity []byte
	prevLeft      []byte
	skipped       int
}

// ShouldSkip reports whether the frame repeats the previous one and may be
// skipped. The previous frame is remembered whenever the frame is processed.
func (g *DuplicateGuard) ShouldSkip(disparity, left []byte) bool {
	same := g.prevDisparity != nil &&
		bytes.Equal(disparity, g.prevDisparity) &&
		bytes.Equal(left, g.prevLeft)
	if same && g.skipped < MaxIdenticalSkips {
		g.skipped++
		return true
	}
	g.skipped = 0
	g.prevDisparity = append(g.prevDisparity[:0], disparity...)
	g.prevLeft = append(g.prevLeft[:0], left...)
	return false
}

// Reset forgets the previous frame.
func (g *DuplicateGuard) Reset() {
	g.prevDisparity = nil
	g.prevLeft = nil
	g.skipped = 0
}

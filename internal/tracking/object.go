package tracking

// TrackedObject is one person candidate followed across frames.
type TrackedObject struct {
	ID uint64 // debug only

	X, Y          int
	Width, Length int
	Height        int // smoothed disparity-derived tallness
	MaxHeight     int // highest smoothed Height seen, blended upward only

	Life       int // 0..Config.Life
	NumFrames  int // frames successfully matched, including the birth frame
	DeltaY     int // cumulative vertical displacement since birth
	LastDeltaY int // vertical displacement of the last match

	FirstX, FirstY int

	TrackedThisFrame bool
	Countable        bool
}

// Progress returns the displacement towards the far side of the door line
// for an object owned by a pool of direction d.
func (o *TrackedObject) Progress(d Direction) int { return d.Sign() * o.DeltaY }

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

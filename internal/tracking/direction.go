package tracking

// Direction names the side of the door line a tracked object was born on,
// which is also the pool that owns it.
type Direction int

const (
	// FromHigh objects were born above the door line (small rows) and count
	// when they move down.
	FromHigh Direction = iota
	// FromLow objects were born below the door line and count when they
	// move up.
	FromLow
)

// Sign is +1 for FromHigh and -1 for FromLow. Multiplying a vertical
// displacement by Sign turns it into "progress towards the far side".
func (d Direction) Sign() int {
	if d == FromHigh {
		return 1
	}
	return -1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == FromHigh {
		return FromLow
	}
	return FromHigh
}

func (d Direction) String() string {
	if d == FromHigh {
		return "from-high"
	}
	return "from-low"
}

// NearEdge returns the image row on the birth side of the pool.
func (d Direction) NearEdge(height int) int {
	if d == FromHigh {
		return 0
	}
	return height - 1
}

package frame

// CrossArm is the arm length of the debug cross, in pixels.
const CrossArm = 2

// DrawCross overlays a "+" mark centred at (x, y). It is purely cosmetic
// and clips at the map borders.
func DrawCross(m *DisparityMap, x, y int, v byte) {
	for d := -CrossArm; d <= CrossArm; d++ {
		m.Set(y, x+d, v)
		m.Set(y+d, x, v)
	}
}

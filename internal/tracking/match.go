package tracking

import "github.com/banshee-data/headcount/internal/frame"

// NoMatch is the Detection index of a slot with no accepted match.
const NoMatch = -1

// Match is the outcome of matching one pool slot.
type Match struct {
	Detection int   // index into the frame's detections, or NoMatch
	Cost      int64 // cost of the accepted pairing
	Dist2     int64 // squared pixel distance of the accepted pairing
}

// Matched reports whether the slot has an accepted detection.
func (m Match) Matched() bool { return m.Detection != NoMatch }

// Matcher pairs the objects of a pool with the frame's detections. Its
// scratch buffers are reused between calls; a Matcher is not safe for
// concurrent use.
type Matcher struct {
	cost  [][]int64 // slots x detections
	dist  [][]int64
	rows  []int
	cols  []int
	colOn []bool
	sq    [][]int64
	buf   AssignBuffer
}

// Match returns one Match per pool slot. Only pairings with a feasible cost
// are ever accepted.
func (m *Matcher) Match(cfg Config, pool *Pool, dets []frame.Detection, width, height int) []Match {
	out := make([]Match, pool.Cap())
	for i := range out {
		out[i] = Match{Detection: NoMatch}
	}
	if pool.Cap() == 0 || len(dets) == 0 {
		return out
	}

	m.reset(pool.Cap(), len(dets))

	// Score every occupied slot against every detection and remember which
	// rows and columns have at least one possible pairing.
	for i := 0; i < pool.Cap(); i++ {
		o := pool.Get(i)
		rowOn := false
		for p := range dets {
			m.cost[i][p] = InfeasibleCost
			if o == nil {
				continue
			}
			c, d2, ok := cfg.PairCost(o, dets[p], width, height)
			if !ok {
				continue
			}
			m.cost[i][p] = c
			m.dist[i][p] = d2
			rowOn = true
			m.colOn[p] = true
		}
		if rowOn {
			m.rows = append(m.rows, i)
		}
	}
	for p := range dets {
		if m.colOn[p] {
			m.cols = append(m.cols, p)
		}
	}
	if len(m.rows) == 0 || len(m.cols) == 0 {
		return out
	}

	// Compact to the active sub-matrix and pad it square with zeros.
	n := max(len(m.rows), len(m.cols))
	if cap(m.sq) < n {
		m.sq = make([][]int64, n)
	}
	m.sq = m.sq[:n]
	for r := 0; r < n; r++ {
		if cap(m.sq[r]) < n {
			m.sq[r] = make([]int64, n)
		}
		m.sq[r] = m.sq[r][:n]
		for c := 0; c < n; c++ {
			var v int64
			if r < len(m.rows) && c < len(m.cols) {
				v = m.cost[m.rows[r]][m.cols[c]]
			}
			m.sq[r][c] = v
		}
	}

	assign := AssignSquare(m.sq, &m.buf)
	for r, c := range assign {
		if r >= len(m.rows) || c < 0 || c >= len(m.cols) {
			continue
		}
		slot, det := m.rows[r], m.cols[c]
		if m.cost[slot][det] >= InfeasibleCost {
			continue
		}
		out[slot] = Match{Detection: det, Cost: m.cost[slot][det], Dist2: m.dist[slot][det]}
	}
	return out
}

func (m *Matcher) reset(slots, dets int) {
	if len(m.cost) < slots {
		m.cost = make([][]int64, slots)
		m.dist = make([][]int64, slots)
	}
	for i := 0; i < slots; i++ {
		if cap(m.cost[i]) < dets {
			m.cost[i] = make([]int64, dets)
			m.dist[i] = make([]int64, dets)
		}
		m.cost[i] = m.cost[i][:dets]
		m.dist[i] = m.dist[i][:dets]
		clear(m.dist[i])
	}
	if cap(m.colOn) < dets {
		m.colOn = make([]bool, dets)
	}
	m.colOn = m.colOn[:dets]
	clear(m.colOn)
	m.rows = m.rows[:0]
	m.cols = m.cols[:0]
}

// Claims returns, for each detection, whether any slot accepted it.
func Claims(numDetections int, matches ...[]Match) []bool {
	claimed := make([]bool, numDetections)
	for _, ms := range matches {
		for _, mt := range ms {
			if mt.Matched() {
				claimed[mt.Detection] = true
			}
		}
	}
	return claimed
}

package tracking

// InfeasibleCost marks a cost-matrix entry whose pairing is impossible. The
// solver may still route through it when the matrix forces a perfect
// matching; callers reject such assignments afterwards.
const InfeasibleCost int64 = 1<<31 - 1

// AssignSquare solves the minimum-cost perfect matching on an n×n
// non-negative cost matrix using Kuhn–Munkres with potentials. It returns
// assign[row] = col. Every row receives a column.
//
// buf may be nil. When provided it is reused for the internal arrays and the
// returned slice, which is only valid until the next call with the same buf.
func AssignSquare(cost [][]int64, buf *AssignBuffer) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	if buf == nil {
		buf = &AssignBuffer{}
	}
	buf.grow(n)

	// 1-indexed internally; column 0 is the virtual start column.
	u, v, p, way, minv, used := buf.u, buf.v, buf.p, buf.way, buf.minv, buf.used
	for j := 0; j <= n; j++ {
		u[j], v[j], p[j], way[j] = 0, 0, 0, 0
	}

	const inf = int64(1) << 62

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= n; j++ {
			minv[j] = inf
			used[j] = false
		}
		used[0] = false

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	assign := buf.assign[:n]
	for i := range assign {
		assign[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			assign[p[j]-1] = j - 1
		}
	}
	return assign
}

// AssignBuffer holds the scratch arrays of AssignSquare.
type AssignBuffer struct {
	u, v, minv []int64
	p, way     []int
	used       []bool
	assign     []int
}

func (b *AssignBuffer) grow(n int) {
	if cap(b.u) >= n+1 {
		b.u, b.v, b.minv = b.u[:n+1], b.v[:n+1], b.minv[:n+1]
		b.p, b.way, b.used = b.p[:n+1], b.way[:n+1], b.used[:n+1]
		b.assign = b.assign[:n]
		return
	}
	b.u = make([]int64, n+1)
	b.v = make([]int64, n+1)
	b.minv = make([]int64, n+1)
	b.p = make([]int, n+1)
	b.way = make([]int, n+1)
	b.used = make([]bool, n+1)
	b.assign = make([]int, n)
}

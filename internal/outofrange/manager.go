package outofrange

import (
	"sync"

	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/monitoring"
	"github.com/banshee-data/headcount/internal/tracking"
)

// State is the out-of-range compensation state.
type State int

const (
	Disabled State = iota
	EnabledNormal
	InOutOfRange
	SuspendedStaticBlob
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case EnabledNormal:
		return "enabled"
	case InOutOfRange:
		return "out-of-range"
	case SuspendedStaticBlob:
		return "suspended-static-blob"
	}
	return "unknown"
}

// Params carries the per-frame inputs.
type Params struct {
	DoorThreshold int
	MaskPercent   int // share of the frame hidden by the door mask
}

// Status is a point-in-time view of the manager for telemetry.
type Status struct {
	State            string `json:"state"`
	Enabled          bool   `json:"enabled"`
	Active           bool   `json:"active"`
	Reliable         bool   `json:"reliable"`
	Row              int    `json:"row"`
	Col              int    `json:"col"`
	Radius           int    `json:"radius"`
	BlackCount       int    `json:"black_count"`
	InterestingCount int    `json:"interesting_count"`
	FromHigh         bool   `json:"from_high"`
	StaticFrames     int    `json:"static_frames"`
}

// Manager detects objects too close for the stereo engine to measure and
// paints a virtual blob where they are, so detection and tracking carry on.
// It is owned by the frame loop; status methods may be called from other
// goroutines.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	state State

	// Smoothed observation of the current out-of-range object.
	black       int
	interesting int
	row, col    int
	radius      int
	fromHigh    bool

	// Last candidate position and the frames since it was seen.
	lastCandRow, lastCandCol int
	candAge                  int

	// Static blob detection.
	staticFrames int
	lastWindow   Window
	suspendLeft  int

	reliability *Reliability
	template    *blobTemplate
}

// NewManager returns a manager, enabled when cfg.Enabled is set.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cfg:         cfg,
		row:         -1,
		col:         -1,
		lastCandRow: -1,
		lastCandCol: -1,
		reliability: NewReliability(cfg),
		template:    newBlobTemplate(cfg.VirtualBlobMaxRadius, cfg.VirtualBlobBorderWidth, cfg.MinInteresting()),
	}
	if cfg.Enabled {
		m.state = EnabledNormal
	}
	return m
}

// Enable switches compensation on and forgets any out-of-range object.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = EnabledNormal
	m.clear()
}

// Disable switches compensation off.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Disabled
	m.clear()
}

func (m *Manager) clear() {
	m.black, m.interesting = 0, 0
	m.row, m.col = -1, -1
	m.radius = 0
	m.fromHigh = false
	m.staticFrames = 0
	m.lastWindow = Window{Row: -1, Col: -1}
	m.forgetCandidate()
}

func (m *Manager) forgetCandidate() {
	m.lastCandRow, m.lastCandCol = -1, -1
	m.candAge = 0
}

// rememberedCandidate returns the last candidate position while it has not
// expired. Each call ages it by one frame.
func (m *Manager) rememberedCandidate() (row, col int, ok bool) {
	if m.lastCandRow < 0 || m.candAge >= m.cfg.CandidateMemory {
		return 0, 0, false
	}
	m.candAge++
	return m.lastCandRow, m.lastCandCol, true
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Enabled reports whether compensation is switched on, including while
// suspended.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != Disabled
}

// Active reports whether a virtual blob is being injected.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == InOutOfRange
}

// Centroid returns the smoothed centroid, (-1, -1) when inactive.
func (m *Manager) Centroid() (row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.row, m.col
}

// Radius returns the current virtual blob radius.
func (m *Manager) Radius() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.radius
}

// Status returns a snapshot for telemetry.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:            m.state.String(),
		Enabled:          m.state != Disabled,
		Active:           m.state == InOutOfRange,
		Reliable:         m.reliability.Reliable(),
		Row:              m.row,
		Col:              m.col,
		Radius:           m.radius,
		BlackCount:       m.black,
		InterestingCount: m.interesting,
		FromHigh:         m.fromHigh,
		StaticFrames:     m.staticFrames,
	}
}

// VirtualBlob describes the injected blob for the tracker's noise
// suppression, or nil when nothing is injected.
func (m *Manager) VirtualBlob() *tracking.VirtualBlob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != InOutOfRange || m.radius <= 0 {
		return nil
	}
	return &tracking.VirtualBlob{
		Row:          m.row,
		Col:          m.col,
		Radius:       m.radius,
		KeepDistance: m.cfg.KeepDistance,
		MinFrames:    m.cfg.MinFrames,
	}
}

// Handle runs one frame: it checks the background, finds the candidate
// near-field object, updates the state and, while out of range, stamps the
// virtual blob into dm. dets are the detections of the previous frame. It
// reports whether a blob was injected.
func (m *Manager) Handle(dm *frame.DisparityMap, masks *frame.Masks, dets []frame.Detection, p Params) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Disabled:
		return false
	case SuspendedStaticBlob:
		m.suspendLeft--
		if m.suspendLeft <= 0 {
			monitoring.Logf("outofrange: static blob cooldown over, re-enabling")
			m.state = EnabledNormal
			m.clear()
		}
		return false
	}

	if !m.reliability.Observe(masks.BlackCount()) {
		if m.state == InOutOfRange {
			monitoring.Logf("outofrange: background unreliable, leaving out-of-range")
			m.state = EnabledNormal
			m.clear()
		}
		return false
	}

	radius := max(m.cfg.StaticRadius, m.radius)
	row, col, ok := m.candidate(dm, masks, dets, radius)
	switch {
	case ok:
		m.lastCandRow, m.lastCandCol, m.candAge = row, col, 0
	case m.state == InOutOfRange:
		row, col = m.row, m.col
	default:
		// The head may already be too close to be detected.
		if row, col, ok = m.rememberedCandidate(); !ok {
			return false
		}
	}
	w := WeightedCentroid(dm, masks, row, col, radius, m.cfg.MinInteresting())

	m.update(w, p)
	if m.state != InOutOfRange {
		return false
	}
	m.CopyVirtualBlob(dm, masks, m.row, m.col, m.radius)
	return true
}

// candidate picks the detection most likely to be the out-of-range object:
// the first very tall one, else the one with the most black pixels around
// it among those tall enough.
func (m *Manager) candidate(dm *frame.DisparityMap, masks *frame.Masks, dets []frame.Detection, radius int) (row, col int, ok bool) {
	for _, d := range dets {
		if int(d.Height) > m.cfg.SnapHeight {
			return d.Y, d.X, true
		}
	}
	best := -1
	for _, d := range dets {
		if int(d.Height) < m.cfg.MinCandidateHeight() {
			continue
		}
		n := countBlack(dm, masks, d.Y, d.X, radius)
		if n > best {
			best = n
			row, col, ok = d.Y, d.X, true
		}
	}
	return row, col, ok
}

func countBlack(dm *frame.DisparityMap, masks *frame.Masks, row, col, radius int) int {
	n := 0
	for r := max(row-radius, 0); r <= min(row+radius, dm.Height-1); r++ {
		for c := max(col-radius, 0); c <= min(col+radius, dm.Width-1); c++ {
			if masks.Black[dm.Idx(r, c)] != 0 {
				n++
			}
		}
	}
	return n
}

func (m *Manager) thresholds(p Params) (on, off int) {
	keep := 100 - p.MaskPercent
	return m.cfg.OnThreshold * keep / 100, m.cfg.OffThreshold * keep / 100
}

func (m *Manager) outsideBand(row, thr int) bool {
	return row < thr-m.cfg.Hysteresis || row > thr+m.cfg.Hysteresis
}

// update advances the state machine with this frame's window.
func (m *Manager) update(w Window, p Params) {
	on, off := m.thresholds(p)

	if m.state == EnabledNormal {
		if w.Valid() && w.Black > on && w.MaskedPercent() > m.cfg.MaskedBlackPercent && m.outsideBand(w.Row, p.DoorThreshold) {
			m.state = InOutOfRange
			m.black, m.interesting = w.Black, w.Interesting
			m.row, m.col = w.Row, w.Col
			m.fromHigh = w.Row < p.DoorThreshold
			m.radius = min(ComputeRay(m.black, m.interesting), m.cfg.VirtualBlobMaxRadius)
			m.staticFrames = 0
			m.lastWindow = w
			monitoring.Logf("outofrange: on at (%d,%d) black=%d radius=%d", m.row, m.col, m.black, m.radius)
		}
		return
	}

	// InOutOfRange: blend, then decide whether it is over.
	m.black = (m.black + 3*w.Black) / 4
	m.interesting = (m.interesting + 3*w.Interesting) / 4
	if w.Valid() {
		m.row = (m.row + 3*w.Row) / 4
		m.col = (m.col + 3*w.Col) / 4
	}

	crossed := (m.fromHigh && m.row > p.DoorThreshold) || (!m.fromHigh && m.row < p.DoorThreshold)
	if m.black < off || (w.Black <= on && crossed) {
		monitoring.Logf("outofrange: off at (%d,%d) black=%d", m.row, m.col, m.black)
		m.state = EnabledNormal
		m.clear()
		return
	}
	m.radius = min(ComputeRay(m.black, m.interesting), m.cfg.VirtualBlobMaxRadius)

	if m.cfg.StaticBlobCheck {
		m.checkStatic(w)
	}
}

// checkStatic suspends compensation when the out-of-range object has not
// moved or changed size for too long.
func (m *Manager) checkStatic(w Window) {
	prev := m.lastWindow
	m.lastWindow = w
	still := w.Valid() && prev.Valid() &&
		absInt(w.Row-prev.Row) <= 1 && absInt(w.Col-prev.Col) <= 1 &&
		w.Black*100 >= prev.Black*80 && w.Black*100 <= prev.Black*120
	if !still {
		m.staticFrames = 0
		return
	}
	m.staticFrames++
	if m.staticFrames > m.cfg.MaxNumFrameForStaticBlob {
		monitoring.Logf("outofrange: static blob at (%d,%d) for %d frames, suspending for %d frames",
			m.row, m.col, m.staticFrames, m.cfg.FrameToWaitToReEnable)
		m.state = SuspendedStaticBlob
		m.suspendLeft = m.cfg.FrameToWaitToReEnable
		m.clear()
	}
}

package tracking

import (
	"sync"

	"github.com/banshee-data/headcount/internal/config"
	"github.com/banshee-data/headcount/internal/frame"
	"github.com/banshee-data/headcount/internal/monitoring"
)

// CountEvent reports one counted crossing.
type CountEvent struct {
	ObjectID    uint64
	From        Direction
	Entered     bool // false means exited
	OnDoorClose bool
	In, Out     int // counters after the event
}

// Tracker follows heads across frames in two direction pools and turns
// completed crossings into entered/exited counts.
//
// A single mutex serialises frame updates with every counter access, so
// command handlers may call any method while frames are being processed.
type Tracker struct {
	mu sync.Mutex

	cfg     Config
	pools   [2]*Pool // indexed by Direction
	chain   int
	entered int
	exited  int
	nextID  uint64

	// Frame scratch, reused across frames.
	matcher Matcher
	refs    []objRef
	near    []int
}

// NewTracker returns a tracker sized for a single sensor.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{cfg: cfg}
	t.allocate(1)
	return t
}

func (t *Tracker) allocate(chain int) {
	if chain < 1 {
		chain = 1
	}
	if t.cfg.MaxChain > 0 && chain > t.cfg.MaxChain {
		chain = t.cfg.MaxChain
	}
	capacity := t.cfg.NumPersSingle * chain
	t.chain = chain
	t.pools = [2]*Pool{NewPool(FromHigh, capacity), NewPool(FromLow, capacity)}
}

// Init restores the counters and sizes the pools for chainLength sensors.
// Both pools are emptied. It returns the per-pool capacity.
func (t *Tracker) Init(prevIn, prevOut, chainLength int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allocate(chainLength)
	t.entered = prevIn
	t.exited = prevOut
	monitoring.Logf("tracking: init in=%d out=%d chain=%d capacity=%d", prevIn, prevOut, t.chain, t.pools[FromHigh].Cap())
	return t.pools[FromHigh].Cap()
}

// Deinit drops every tracked object. Counters are kept.
func (t *Tracker) Deinit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.Clear()
	}
}

// ChainLength returns the number of chained sensors the pools are sized for.
func (t *Tracker) ChainLength() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chain
}

// Counters returns the entered and exited counts.
func (t *Tracker) Counters() (in, out int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entered, t.exited
}

// ResetCounters zeroes both counters.
func (t *Tracker) ResetCounters() {
	t.SetCounters(0, 0)
}

// SetCounters overwrites both counters, as done when a chain master
// synchronises its slaves.
func (t *Tracker) SetCounters(in, out int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entered = in
	t.exited = out
}

// Objects returns a copy of the objects currently owned by pool d.
func (t *Tracker) Objects(d Direction) []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pools[d].Snapshot()
}

// Update runs one frame of tracking and counting and returns the crossings
// counted during it. m may be nil; it is only written to when debug crosses
// are enabled.
func (t *Tracker) Update(m *frame.DisparityMap, dets []frame.Detection, p FrameParams) []CountEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	high, low := t.pools[FromHigh], t.pools[FromLow]

	// Step 1: clear per-frame flags
	for _, pool := range t.pools {
		for i := 0; i < pool.Cap(); i++ {
			if o := pool.Get(i); o != nil {
				o.TrackedThisFrame = false
			}
		}
	}

	// Step 2: match each pool against the detections independently
	highMatches := t.matcher.Match(t.cfg, high, dets, p.Width, p.Height)
	lowMatches := t.matcher.Match(t.cfg, low, dets, p.Width, p.Height)

	// Step 3: settle detections claimed by both pools
	if anyMatched(highMatches) && anyMatched(lowMatches) {
		t.cfg.resolveCrossPool(high, highMatches, low, lowMatches)
	}

	// Step 4: apply accepted matches
	for d, matches := range [2][]Match{highMatches, lowMatches} {
		pool := t.pools[d]
		for i, mt := range matches {
			if !mt.Matched() {
				continue
			}
			t.applyMatch(pool.Get(i), dets[mt.Detection])
		}
	}

	// Step 5: spawn objects for unclaimed detections
	claimed := Claims(len(dets), highMatches, lowMatches)
	for i, d := range dets {
		if claimed[i] || !d.Trackable() {
			continue
		}
		t.spawn(d, len(dets), p)
	}

	// Step 6: suppress noise around the virtual blob
	t.clearAroundVirtualBlob(p.VirtualBlob)

	// Step 7: proximity consistency
	if t.cfg.ConsistencyCheck {
		t.checkConsistency(p)
	}

	// Step 8: mark objects that have crossed the band
	for _, pool := range t.pools {
		for i := 0; i < pool.Cap(); i++ {
			o := pool.Get(i)
			if o != nil && o.TrackedThisFrame && t.cfg.inExitZone(pool.Direction(), o.Y, p.DoorThreshold) {
				o.Countable = true
			}
		}
	}

	// Step 9: decay unmatched objects, counting or deleting the dead
	var events []CountEvent
	gate := !p.MotionDetectionEnabled || p.MotionSeen
	for _, pool := range t.pools {
		for i := 0; i < pool.Cap(); i++ {
			o := pool.Get(i)
			if o == nil || o.TrackedThisFrame {
				continue
			}
			o.Life = max(o.Life-t.cfg.LifeDec, 0)
			if o.Life > 0 {
				continue
			}
			if gate && t.cfg.IsCountable(o, pool.Direction(), p) {
				events = append(events, t.count(o, pool.Direction(), p.InvertDirection, false))
			}
			pool.Delete(i)
		}
	}

	if m != nil && t.cfg.DrawCrosses && t.chain == 1 {
		for _, pool := range t.pools {
			for i := 0; i < pool.Cap(); i++ {
				if o := pool.Get(i); o != nil {
					frame.DrawCross(m, o.X, o.Y, 0xff)
				}
			}
		}
	}
	return events
}

func anyMatched(ms []Match) bool {
	for _, m := range ms {
		if m.Matched() {
			return true
		}
	}
	return false
}

// applyMatch folds detection d into o.
func (t *Tracker) applyMatch(o *TrackedObject, d frame.Detection) {
	h := int(d.Height)
	prevY := o.Y
	if h > t.cfg.SnapHeight {
		o.X, o.Y, o.Height = d.X, d.Y, h
	} else {
		o.X = (o.X + 3*d.X) / 4
		o.Y = (o.Y + 3*d.Y) / 4
		o.Height = (o.Height + 3*h) / 4
	}
	if h > o.MaxHeight {
		if h > t.cfg.SnapHeight {
			o.MaxHeight = h
		} else {
			o.MaxHeight = (o.MaxHeight + 3*h) / 4
		}
	}
	o.Width, o.Length = int(d.Width), int(d.Length)

	dy := o.Y - prevY
	o.DeltaY += dy
	o.LastDeltaY = dy
	o.Life = min(o.Life+1, t.cfg.Life)
	o.NumFrames++
	o.TrackedThisFrame = true
}

// spawn starts tracking d in the pool on its side of the door line. When
// the pool is full the detection is dropped.
func (t *Tracker) spawn(d frame.Detection, numDets int, p FrameParams) {
	dir := FromLow
	if d.Y < p.DoorThreshold {
		dir = FromHigh
	}
	pool := t.pools[dir]
	i := pool.FreeSlot(numDets)
	if i < 0 {
		monitoring.Debugf("tracking: %s pool full, dropping detection at (%d,%d)", dir, d.X, d.Y)
		return
	}
	firstY := d.Y
	if p.DoorTransition {
		firstY = dir.NearEdge(p.Height)
	}
	t.nextID++
	pool.Put(i, TrackedObject{
		ID:               t.nextID,
		X:                d.X,
		Y:                d.Y,
		Width:            int(d.Width),
		Length:           int(d.Length),
		Height:           int(d.Height),
		MaxHeight:        int(d.Height),
		Life:             t.cfg.InitLife(),
		NumFrames:        1,
		FirstX:           d.X,
		FirstY:           firstY,
		TrackedThisFrame: true,
	})
}

// count increments the counter o maps to. Callers hold t.mu.
func (t *Tracker) count(o *TrackedObject, d Direction, invert, onClose bool) CountEvent {
	entered := countsAsEntered(d, invert)
	if entered {
		t.entered++
	} else {
		t.exited++
	}
	monitoring.Debugf("tracking: counted %s #%d entered=%v in=%d out=%d", d, o.ID, entered, t.entered, t.exited)
	return CountEvent{
		ObjectID:    o.ID,
		From:        d,
		Entered:     entered,
		OnDoorClose: onClose,
		In:          t.entered,
		Out:         t.exited,
	}
}

// CloseDoor resolves the objects still being tracked when the door closes.
// doorSide is the pool whose objects come through the door.
//
// With the transplant strategy, objects of the door-side pool that already
// qualify are counted, objects that have made some progress move to the
// opposite pool with their birth row reset to its near edge, and the rest
// are dropped. With the reset strategy, every qualifying object of both
// pools is counted and both pools are emptied.
func (t *Tracker) CloseDoor(doorSide Direction, p FrameParams) []CountEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []CountEvent
	if t.cfg.DoorCloseStrategy == config.DoorCloseReset {
		for _, pool := range t.pools {
			for i := 0; i < pool.Cap(); i++ {
				o := pool.Get(i)
				if o != nil && t.cfg.IsCountableOnClosure(o, pool.Direction()) {
					events = append(events, t.count(o, pool.Direction(), p.InvertDirection, true))
				}
			}
			pool.Clear()
		}
		return events
	}

	src := t.pools[doorSide]
	dst := t.pools[doorSide.Opposite()]
	for i := 0; i < src.Cap(); i++ {
		o := src.Get(i)
		if o == nil {
			continue
		}
		switch {
		case t.cfg.IsCountableOnClosure(o, doorSide):
			events = append(events, t.count(o, doorSide, p.InvertDirection, true))
		case o.Progress(doorSide) > t.cfg.BgYMaxDelta && t.cfg.isPersistent(o):
			if j := dst.FreeSlot(0); j >= 0 {
				moved := *o
				moved.FirstX = o.X
				moved.FirstY = dst.Direction().NearEdge(p.Height)
				moved.DeltaY = 0
				moved.LastDeltaY = 0
				moved.Countable = false
				dst.Put(j, moved)
			}
		}
		src.Delete(i)
	}
	return events
}

// ForceTwoStepsOnDoorOpen seeds the displacement of every object that has
// not yet crossed the hysteresis band, so objects already inside the frame
// when the door opens can still be counted.
func (t *Tracker) ForceTwoStepsOnDoorOpen(p FrameParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pool := range t.pools {
		d := pool.Direction()
		for i := 0; i < pool.Cap(); i++ {
			o := pool.Get(i)
			if o == nil || o.Progress(d) >= t.cfg.MinCrossing() {
				continue
			}
			o.DeltaY = d.Sign() * t.cfg.MinCrossing()
			o.FirstY = d.NearEdge(p.Height)
		}
	}
}

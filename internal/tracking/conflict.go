package tracking

import (
	"github.com/bmharper/flatbush-go"

	"github.com/banshee-data/headcount/internal/monitoring"
)

// resolveCrossPool drops one side of every detection claimed by both pools.
// high and low hold the matches of the FromHigh and FromLow pools and are
// edited in place.
func (c Config) resolveCrossPool(highPool *Pool, high []Match, lowPool *Pool, low []Match) {
	for i := range high {
		if !high[i].Matched() {
			continue
		}
		for j := range low {
			if low[j].Detection != high[i].Detection {
				continue
			}
			a, b := highPool.Get(i), lowPool.Get(j)
			if c.highWinsClaim(a, high[i], b, low[j]) {
				monitoring.Debugf("tracking: detection %d kept by %s #%d over #%d", high[i].Detection, FromHigh, a.ID, b.ID)
				low[j] = Match{Detection: NoMatch}
			} else {
				monitoring.Debugf("tracking: detection %d kept by %s #%d over #%d", high[i].Detection, FromLow, b.ID, a.ID)
				high[i] = Match{Detection: NoMatch}
				break
			}
		}
	}
}

// highWinsClaim decides a double claim between a (FromHigh) and b (FromLow).
func (c Config) highWinsClaim(a *TrackedObject, am Match, b *TrackedObject, bm Match) bool {
	// A clearly cheaper pairing wins.
	if am.Cost != bm.Cost {
		if am.Cost*100 <= bm.Cost*int64(c.ConflictCostRatioPercent) {
			return true
		}
		if bm.Cost*100 <= am.Cost*int64(c.ConflictCostRatioPercent) {
			return false
		}
	}

	// An established object that has made clearly more progress wins.
	pa, pb := a.Progress(FromHigh), b.Progress(FromLow)
	mul := c.ConflictDisplacementMul
	if pa > 0 && pa >= mul*pb && a.NumFrames >= c.MinNumFrames {
		return true
	}
	if pb > 0 && pb >= mul*pa && b.NumFrames >= c.MinNumFrames {
		return false
	}

	// Closest wins; on a tie the jumpier object loses.
	if am.Dist2 != bm.Dist2 {
		return am.Dist2 < bm.Dist2
	}
	return absInt(a.LastDeltaY) <= absInt(b.LastDeltaY)
}

type objRef struct {
	dir  Direction
	slot int
	obj  *TrackedObject
}

// proximityLoser returns 0 when a should yield, 1 when b should yield, or
// -1 when no rule separates them.
func (c Config) proximityLoser(a, b objRef, p FrameParams) int {
	ao, bo := a.obj, b.obj
	aOnce, bOnce := ao.NumFrames <= 1, bo.NumFrames <= 1

	aReady := c.IsCountable(ao, a.dir, p)
	bReady := c.IsCountable(bo, b.dir, p)
	switch {
	case aReady && bOnce && !bReady:
		return 1
	case bReady && aOnce && !aReady:
		return 0
	}

	if a.dir == b.dir &&
		c.inEntryZone(a.dir, ao.Y, p.DoorThreshold) &&
		c.inEntryZone(b.dir, bo.Y, p.DoorThreshold) {
		switch {
		case aOnce && !bOnce:
			return 0
		case bOnce && !aOnce:
			return 1
		}
	}

	aHeld := ao.NumFrames >= c.MinNumFrames && !c.inEntryZone(a.dir, ao.Y, p.DoorThreshold)
	bHeld := bo.NumFrames >= c.MinNumFrames && !c.inEntryZone(b.dir, bo.Y, p.DoorThreshold)
	switch {
	case aHeld && bOnce:
		return 1
	case bHeld && aOnce:
		return 0
	}
	return -1
}

// checkConsistency resolves pairs of objects sitting on top of each other.
// The loser gets Life 0 and is treated as lost this frame, so it still goes
// through the counting path.
func (t *Tracker) checkConsistency(p FrameParams) {
	refs := t.refs[:0]
	for _, pool := range t.pools {
		for i := 0; i < pool.Cap(); i++ {
			if o := pool.Get(i); o != nil {
				refs = append(refs, objRef{dir: pool.Direction(), slot: i, obj: o})
			}
		}
	}
	t.refs = refs
	if len(refs) < 2 || t.cfg.HeadRayRatio <= 0 {
		return
	}

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(refs))
	for _, r := range refs {
		fb.Add(int32(r.obj.X), int32(r.obj.Y), int32(r.obj.X), int32(r.obj.Y))
	}
	fb.Finish()

	lose := func(r objRef) {
		r.obj.Life = 0
		r.obj.TrackedThisFrame = false
	}

	for i, ra := range refs {
		a := ra.obj
		if a.Life == 0 {
			continue
		}
		reach := int32(a.MaxHeight / t.cfg.HeadRayRatio)
		t.near = fb.SearchFast(int32(a.X)-reach, int32(a.Y)-reach, int32(a.X)+reach, int32(a.Y)+reach, t.near)
		for _, j := range t.near {
			if j <= i {
				continue
			}
			rb := refs[j]
			b := rb.obj
			if b.Life == 0 {
				continue
			}
			r := min(a.MaxHeight, b.MaxHeight) / t.cfg.HeadRayRatio
			dx, dy := a.X-b.X, a.Y-b.Y
			if dx*dx+dy*dy >= r*r {
				continue
			}
			switch t.cfg.proximityLoser(ra, rb, p) {
			case 0:
				lose(ra)
			case 1:
				lose(rb)
			default:
				monitoring.Debugf("tracking: unresolved proximity between %s #%d and %s #%d at (%d,%d)",
					ra.dir, a.ID, rb.dir, b.ID, a.X, a.Y)
			}
			if a.Life == 0 {
				break
			}
		}
	}
}

// clearAroundVirtualBlob deletes uncounted objects that the edges of an
// injected virtual blob are likely to have produced.
func (t *Tracker) clearAroundVirtualBlob(vb *VirtualBlob) {
	if vb == nil || vb.Radius <= 0 {
		return
	}
	refs := t.refs[:0]
	for _, pool := range t.pools {
		for i := 0; i < pool.Cap(); i++ {
			if o := pool.Get(i); o != nil {
				refs = append(refs, objRef{dir: pool.Direction(), slot: i, obj: o})
			}
		}
	}
	t.refs = refs
	if len(refs) == 0 {
		return
	}

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(refs))
	for _, r := range refs {
		fb.Add(int32(r.obj.X), int32(r.obj.Y), int32(r.obj.X), int32(r.obj.Y))
	}
	fb.Finish()

	rad := int32(vb.Radius)
	t.near = fb.SearchFast(int32(vb.Col)-rad, int32(vb.Row)-rad, int32(vb.Col)+rad, int32(vb.Row)+rad, t.near)
	for _, j := range t.near {
		r := refs[j]
		o := r.obj
		dx, dy := o.X-vb.Col, o.Y-vb.Row
		d2 := dx*dx + dy*dy
		if d2 > vb.Radius*vb.Radius || o.Countable {
			continue
		}
		if o.Height >= t.cfg.SnapHeight || o.NumFrames >= vb.MinFrames || d2 <= vb.KeepDistance*vb.KeepDistance {
			continue
		}
		monitoring.Debugf("tracking: dropping %s #%d near virtual blob", r.dir, o.ID)
		t.pools[r.dir].Delete(r.slot)
	}
}

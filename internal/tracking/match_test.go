package tracking

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/headcount/internal/frame"
)

func TestMatch_EmptyInputs(t *testing.T) {
	cfg := testConfig(t)
	var m Matcher

	p := NewPool(FromHigh, 4)
	got := m.Match(cfg, p, []frame.Detection{det(10, 10, 80)}, testWidth, testHeight)
	if len(got) != 4 {
		t.Fatalf("expected one match per slot, got %d", len(got))
	}
	for i, mt := range got {
		if mt.Matched() {
			t.Errorf("slot %d matched with an empty pool", i)
		}
	}

	p.Put(1, obj(1, 10, 10, 80))
	for i, mt := range m.Match(cfg, p, nil, testWidth, testHeight) {
		if mt.Matched() {
			t.Errorf("slot %d matched with no detections", i)
		}
	}
}

func TestMatch_PicksGlobalOptimum(t *testing.T) {
	cfg := testConfig(t)
	var m Matcher

	// Both slots are equally far from detection 0; only slot 0 can take
	// detection 1 cheaply.
	p := NewPool(FromLow, 3)
	p.Put(0, obj(1, 50, 80, 80))
	p.Put(2, obj(2, 50, 100, 80))
	dets := []frame.Detection{det(50, 90, 80), det(50, 72, 80)}

	got := m.Match(cfg, p, dets, testWidth, testHeight)
	if got[0].Detection != 1 || got[2].Detection != 0 {
		t.Errorf("matches = %+v, want slot0→1 slot2→0", got)
	}
	if got[1].Matched() {
		t.Error("empty slot must not match")
	}
	if got[0].Cost != 64 || got[0].Dist2 != 64 {
		t.Errorf("slot 0 cost/dist2 = %d/%d, want 64/64", got[0].Cost, got[0].Dist2)
	}
}

func TestMatch_NoInfeasibleAcceptance(t *testing.T) {
	cfg := testConfig(t)
	var m Matcher
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 300; trial++ {
		p := NewPool(FromHigh, 6)
		for i := 0; i < 6; i++ {
			if rng.Intn(3) > 0 {
				p.Put(i, obj(uint64(i+1), rng.Intn(testWidth), rng.Intn(testHeight), 40+rng.Intn(80)))
			}
		}
		dets := make([]frame.Detection, rng.Intn(7))
		for i := range dets {
			dets[i] = det(rng.Intn(testWidth), rng.Intn(testHeight), byte(rng.Intn(128)))
		}

		got := m.Match(cfg, p, dets, testWidth, testHeight)
		used := make(map[int]bool)
		for slot, mt := range got {
			if !mt.Matched() {
				continue
			}
			if used[mt.Detection] {
				t.Fatalf("trial %d: detection %d matched twice", trial, mt.Detection)
			}
			used[mt.Detection] = true
			if _, _, ok := cfg.PairCost(p.Get(slot), dets[mt.Detection], testWidth, testHeight); !ok {
				t.Fatalf("trial %d: slot %d accepted infeasible detection %d", trial, slot, mt.Detection)
			}
		}
	}
}

func TestClaims(t *testing.T) {
	a := []Match{{Detection: 2}, {Detection: NoMatch}}
	b := []Match{{Detection: 0}}
	got := Claims(3, a, b)
	if !got[0] || got[1] || !got[2] {
		t.Errorf("Claims = %v, want [true false true]", got)
	}
}

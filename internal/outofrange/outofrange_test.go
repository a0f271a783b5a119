package outofrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headcount/internal/frame"
)

const (
	testWidth     = 160
	testHeight    = 120
	testThreshold = 60
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return DefaultConfig()
}

// blackDisk returns a map and masks with a disk of black pixels at (row,
// col). When background is set the disk is also background-black.
func blackDisk(row, col, radius int, background bool) (*frame.DisparityMap, *frame.Masks) {
	m := frame.NewDisparityMap(testWidth, testHeight)
	masks := frame.NewMasks(testWidth, testHeight)
	for r := row - radius; r <= row+radius; r++ {
		for c := col - radius; c <= col+radius; c++ {
			if !m.In(r, c) || (r-row)*(r-row)+(c-col)*(c-col) > radius*radius {
				continue
			}
			masks.Black[m.Idx(r, c)] = 1
			if background {
				masks.Background[m.Idx(r, c)] = 1
			}
		}
	}
	return m, masks
}

func candidate(row, col int) []frame.Detection {
	return []frame.Detection{{X: col, Y: row, Height: 40}}
}

func TestComputeRay(t *testing.T) {
	tests := []struct {
		black, interesting, want int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 1},
		{314, 0, 14},
		{200, 114, 14},
		{709, 0, 21},
		{5000, 0, 55},
	}
	for _, tt := range tests {
		got := ComputeRay(tt.black, tt.interesting)
		if got != tt.want {
			t.Errorf("ComputeRay(%d, %d) = %d, want %d", tt.black, tt.interesting, got, tt.want)
		}
		if again := ComputeRay(tt.black, tt.interesting); again != got {
			t.Errorf("ComputeRay(%d, %d) not deterministic: %d then %d", tt.black, tt.interesting, got, again)
		}
	}
}

func TestWeightedCentroid_Empty(t *testing.T) {
	m := frame.NewDisparityMap(testWidth, testHeight)
	masks := frame.NewMasks(testWidth, testHeight)

	w := WeightedCentroid(m, masks, 60, 80, 20, 64)
	assert.False(t, w.Valid())
	assert.Equal(t, -1, w.Row)
	assert.Equal(t, -1, w.Col)
	assert.Zero(t, w.Black+w.MaskedBlack+w.Interesting)
	assert.Zero(t, w.MaskedPercent())
}

func TestWeightedCentroid_MaskedBlack(t *testing.T) {
	m, masks := blackDisk(20, 80, 10, true)

	w := WeightedCentroid(m, masks, 20, 80, 20, 64)
	require.True(t, w.Valid())
	assert.Equal(t, w.Black, w.MaskedBlack)
	assert.Equal(t, 100, w.MaskedPercent())
	assert.Equal(t, 80, w.Col)
	// Rows further from the vertical centre weigh more, pulling the
	// centroid of a blob in the top half upwards.
	assert.LessOrEqual(t, w.Row, 20)
	assert.GreaterOrEqual(t, w.Row, 18)
}

func TestWeightedCentroid_CombinesDisparity(t *testing.T) {
	m, masks := blackDisk(20, 70, 5, true)
	for r := 18; r <= 22; r++ {
		for c := 88; c <= 92; c++ {
			m.Set(r, c, 200)
		}
	}

	w := WeightedCentroid(m, masks, 20, 80, 20, 64)
	require.True(t, w.Valid())
	assert.Equal(t, 25, w.Interesting)
	// Between the two sub-centroids, nearer the larger black patch.
	assert.Greater(t, w.Col, 70)
	assert.Less(t, w.Col, 80)
}

func TestManager_DisabledDoesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	mgr := NewManager(cfg)
	m, masks := blackDisk(20, 80, 15, true)

	assert.False(t, mgr.Handle(m, masks, candidate(20, 80), Params{DoorThreshold: testThreshold}))
	assert.Equal(t, Disabled, mgr.State())
	assert.False(t, mgr.Enabled())
	assert.Nil(t, mgr.VirtualBlob())

	mgr.Enable()
	assert.Equal(t, EnabledNormal, mgr.State())
}

func TestManager_Hysteresis(t *testing.T) {
	mgr := NewManager(testConfig(t))
	p := Params{DoorThreshold: testThreshold}

	for i := 0; i < 5; i++ {
		m, masks := blackDisk(20, 80, 15, true)
		assert.True(t, mgr.Handle(m, masks, candidate(20, 80), p), "frame %d", i)
	}
	require.Equal(t, InOutOfRange, mgr.State())
	assert.True(t, mgr.Active())
	assert.Equal(t, 21, mgr.Radius())
	row, col := mgr.Centroid()
	assert.InDelta(t, 20, row, 2)
	assert.Equal(t, 80, col)

	vb := mgr.VirtualBlob()
	require.NotNil(t, vb)
	assert.Equal(t, 21, vb.Radius)
	assert.Equal(t, 10, vb.KeepDistance)

	m := frame.NewDisparityMap(testWidth, testHeight)
	masks := frame.NewMasks(testWidth, testHeight)
	assert.False(t, mgr.Handle(m, masks, candidate(20, 80), p))
	assert.Equal(t, EnabledNormal, mgr.State(), "off in the same frame the count drops")
	row, col = mgr.Centroid()
	assert.Equal(t, -1, row)
	assert.Equal(t, -1, col)
}

func TestManager_NeedsMaskedBlack(t *testing.T) {
	mgr := NewManager(testConfig(t))
	m, masks := blackDisk(20, 80, 15, false)

	mgr.Handle(m, masks, candidate(20, 80), Params{DoorThreshold: testThreshold})
	assert.Equal(t, EnabledNormal, mgr.State())
}

func TestManager_IgnoresDoorBand(t *testing.T) {
	mgr := NewManager(testConfig(t))
	m, masks := blackDisk(60, 80, 15, true)

	mgr.Handle(m, masks, candidate(60, 80), Params{DoorThreshold: testThreshold})
	assert.Equal(t, EnabledNormal, mgr.State())
}

func TestManager_MaskPercentLowersThreshold(t *testing.T) {
	mgr := NewManager(testConfig(t))
	// ~450 black pixels: under 600, over 600*(100-50)/100.
	m, masks := blackDisk(20, 80, 12, true)

	mgr.Handle(m, masks, candidate(20, 80), Params{DoorThreshold: testThreshold})
	assert.Equal(t, EnabledNormal, mgr.State())

	m, masks = blackDisk(20, 80, 12, true)
	mgr.Handle(m, masks, candidate(20, 80), Params{DoorThreshold: testThreshold, MaskPercent: 50})
	assert.Equal(t, InOutOfRange, mgr.State())
}

func TestManager_CandidateNeedsHeight(t *testing.T) {
	mgr := NewManager(testConfig(t))
	m, masks := blackDisk(20, 80, 15, true)

	low := []frame.Detection{{X: 80, Y: 20, Height: 10}}
	mgr.Handle(m, masks, low, Params{DoorThreshold: testThreshold})
	assert.Equal(t, EnabledNormal, mgr.State())
}

func TestManager_TallDetectionPreferred(t *testing.T) {
	mgr := NewManager(testConfig(t))
	m, masks := blackDisk(20, 80, 15, true)

	dets := []frame.Detection{
		{X: 20, Y: 100, Height: 40},
		{X: 80, Y: 20, Height: 121},
	}
	mgr.Handle(m, masks, dets, Params{DoorThreshold: testThreshold})
	require.Equal(t, InOutOfRange, mgr.State())
	_, col := mgr.Centroid()
	assert.Equal(t, 80, col)
}

func TestManager_RemembersLostCandidate(t *testing.T) {
	mgr := NewManager(testConfig(t))
	p := Params{DoorThreshold: testThreshold}

	// Seen while still under the ON threshold.
	m, masks := blackDisk(20, 80, 12, true)
	assert.False(t, mgr.Handle(m, masks, candidate(20, 80), p))
	require.Equal(t, EnabledNormal, mgr.State())

	// Too close to be detected, but now dark enough.
	m, masks = blackDisk(20, 80, 17, true)
	assert.True(t, mgr.Handle(m, masks, nil, p))
	assert.Equal(t, InOutOfRange, mgr.State())
	_, col := mgr.Centroid()
	assert.Equal(t, 80, col)
}

func TestManager_LostCandidateExpires(t *testing.T) {
	cfg := testConfig(t)
	cfg.CandidateMemory = 3
	mgr := NewManager(cfg)
	p := Params{DoorThreshold: testThreshold}

	m, masks := blackDisk(20, 80, 12, true)
	mgr.Handle(m, masks, candidate(20, 80), p)
	for i := 0; i < cfg.CandidateMemory; i++ {
		m := frame.NewDisparityMap(testWidth, testHeight)
		masks := frame.NewMasks(testWidth, testHeight)
		assert.False(t, mgr.Handle(m, masks, nil, p))
	}

	m, masks = blackDisk(20, 80, 17, true)
	assert.False(t, mgr.Handle(m, masks, nil, p))
	assert.Equal(t, EnabledNormal, mgr.State())
}

func TestManager_InjectsVirtualBlob(t *testing.T) {
	cfg := testConfig(t)
	mgr := NewManager(cfg)
	m, masks := blackDisk(30, 80, 15, true)
	m.Set(19, 97, 255) // inside the blob, stronger than it: kept

	require.True(t, mgr.Handle(m, masks, candidate(30, 80), Params{DoorThreshold: testThreshold}))
	row, col := mgr.Centroid()

	centre := m.At(row, col)
	assert.Equal(t, byte(blobPeakLevel*frame.LevelStep), centre)
	assert.Greater(t, int(centre), cfg.MinInteresting())
	assert.Equal(t, byte(255), m.At(19, 97))
	assert.Zero(t, m.At(row, col+mgr.Radius()+1), "nothing outside the disk")
}

func TestCopyVirtualBlob_ClampsInsideBorder(t *testing.T) {
	cfg := testConfig(t)
	mgr := NewManager(cfg)
	m := frame.NewDisparityMap(testWidth, testHeight)
	masks := frame.NewMasks(testWidth, testHeight)

	row, col := mgr.CopyVirtualBlob(m, masks, 2, 2, 10)
	assert.Equal(t, cfg.TrackingBorder+10, row)
	assert.Equal(t, cfg.TrackingBorder+10, col)
	assert.NotZero(t, m.At(row, col))
	assert.Equal(t, byte(blobBorderLevel*frame.LevelStep), m.At(row-10, col))
}

func TestManager_StaticBlobSuspends(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxNumFrameForStaticBlob = 3
	cfg.FrameToWaitToReEnable = 2
	mgr := NewManager(cfg)
	p := Params{DoorThreshold: testThreshold}

	frames := 0
	for mgr.State() != SuspendedStaticBlob && frames < 20 {
		m, masks := blackDisk(20, 80, 15, true)
		mgr.Handle(m, masks, candidate(20, 80), p)
		frames++
	}
	require.Equal(t, SuspendedStaticBlob, mgr.State())
	assert.True(t, mgr.Enabled())
	assert.False(t, mgr.Active())

	for i := 0; i < cfg.FrameToWaitToReEnable; i++ {
		m, masks := blackDisk(20, 80, 15, true)
		assert.False(t, mgr.Handle(m, masks, candidate(20, 80), p))
	}
	assert.Equal(t, EnabledNormal, mgr.State())
}

func TestManager_UnreliableBackgroundBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.DisablePixels = 500
	mgr := NewManager(cfg)
	m, masks := blackDisk(20, 80, 15, true)

	assert.False(t, mgr.Handle(m, masks, candidate(20, 80), Params{DoorThreshold: testThreshold}))
	assert.Equal(t, EnabledNormal, mgr.State())
	assert.False(t, mgr.Status().Reliable)
}

func TestReliability(t *testing.T) {
	cfg := testConfig(t) // 80 frames, 8000 px, 25%, 30000 px
	r := NewReliability(cfg)
	require.True(t, r.Reliable())

	feed := func(over int) {
		for i := 0; i < cfg.CheckInterval; i++ {
			n := 100
			if i < over {
				n = cfg.UnreliableFramePixels + 1
			}
			r.Observe(n)
		}
	}

	feed(19)
	assert.True(t, r.Reliable(), "19/80 frames is under 25%")
	feed(20)
	assert.False(t, r.Reliable(), "20/80 frames is 25%")
	feed(0)
	assert.True(t, r.Reliable(), "a clean window restores trust")

	assert.False(t, r.Observe(cfg.DisablePixels+1), "one huge frame disables at once")
	for i := 1; i < cfg.CheckInterval; i++ {
		r.Observe(0)
	}
	assert.False(t, r.Reliable(), "the window with the huge frame stays unreliable")
	feed(0)
	assert.True(t, r.Reliable())
}

func TestStatus(t *testing.T) {
	mgr := NewManager(testConfig(t))
	s := mgr.Status()
	assert.Equal(t, "enabled", s.State)
	assert.True(t, s.Enabled)
	assert.False(t, s.Active)
	assert.Equal(t, -1, s.Row)

	mgr.Disable()
	assert.Equal(t, "disabled", mgr.Status().State)
}

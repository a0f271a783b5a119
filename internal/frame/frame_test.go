package frame

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDisparityMap(t *testing.T) {
	m := NewDisparityMap(4, 3)
	m.Set(1, 2, 7)
	m.Set(5, 5, 9) // ignored

	if got := m.At(1, 2); got != 7 {
		t.Errorf("At(1,2) = %d, want 7", got)
	}
	if got := m.Pix[1*4+2]; got != 7 {
		t.Errorf("Pix is not row-major: %v", m.Pix)
	}
	if m.At(-1, 0) != 0 || m.At(3, 0) != 0 {
		t.Error("At outside the map should be 0")
	}

	c := m.Clone()
	c.Set(1, 2, 1)
	if m.At(1, 2) != 7 {
		t.Error("Clone shares pixels with the original")
	}
}

func TestMasksBlackCount(t *testing.T) {
	masks := NewMasks(3, 2)
	masks.Black[0] = 1
	masks.Black[5] = 255
	if got := masks.BlackCount(); got != 2 {
		t.Errorf("BlackCount = %d, want 2", got)
	}
}

func TestDecodeDetections(t *testing.T) {
	positions := []int{EncodePosition(10, 3, 160), EncodePosition(159, 0, 160), 0}
	heights := []byte{80, 0}
	sizes := []byte{12, 14, 9, 9}

	got := DecodeDetections(positions, heights, sizes, 160)
	want := []Detection{
		{X: 10, Y: 3, Height: 80, Width: 12, Length: 14},
		{X: 159, Y: 0, Height: 0, Width: 9, Length: 9},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeDetections mismatch (-want +got):\n%s", diff)
	}
	if got[1].Trackable() {
		t.Error("zero-height detection must not be trackable")
	}
	if DecodeDetections(positions, heights, sizes, 0) != nil {
		t.Error("zero stride should decode nothing")
	}
}

func TestMergeChain(t *testing.T) {
	parts := [][]Detection{
		{{X: 5, Y: 1, Height: 60}},
		nil,
		{{X: 7, Y: 2, Height: 70}, {X: 0, Y: 3, Height: 90}},
	}
	got := MergeChain(parts, 160)
	want := []Detection{
		{X: 5, Y: 1, Height: 60},
		{X: 327, Y: 2, Height: 70},
		{X: 320, Y: 3, Height: 90},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeChain mismatch (-want +got):\n%s", diff)
	}
	if parts[2][0].X != 7 {
		t.Error("MergeChain must not modify its input")
	}
}

func TestDrawCross(t *testing.T) {
	m := NewDisparityMap(10, 10)
	DrawCross(m, 0, 5, 200)

	for _, p := range [][2]int{{5, 0}, {5, 1}, {5, 2}, {3, 0}, {4, 0}, {6, 0}, {7, 0}} {
		if m.At(p[0], p[1]) != 200 {
			t.Errorf("pixel (%d,%d) not drawn", p[0], p[1])
		}
	}
	if m.At(5, 3) != 0 || m.At(4, 1) != 0 {
		t.Error("cross drawn too wide")
	}
}

func TestDuplicateGuard(t *testing.T) {
	var g DuplicateGuard
	a := []byte{1, 2, 3}
	left := []byte{9}

	if g.ShouldSkip(a, left) {
		t.Fatal("first frame must never be skipped")
	}
	if !g.ShouldSkip(a, left) || !g.ShouldSkip(a, left) {
		t.Fatal("up to two identical frames should be skipped")
	}
	if g.ShouldSkip(a, left) {
		t.Fatal("a third identical frame must be processed")
	}
	if !g.ShouldSkip(a, left) {
		t.Error("skipping resumes after a processed frame")
	}
	if g.ShouldSkip(a, []byte{8}) {
		t.Error("a different left image is a different frame")
	}

	g.Reset()
	if g.ShouldSkip([]byte{8}, left) {
		t.Error("after Reset the next frame is processed")
	}
}

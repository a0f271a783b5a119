// Package testutil provides shared test fixtures: synthetic head walks,
// mask shapes and HTTP helpers.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/headcount/internal/frame"
)

// Default scene geometry used across package tests.
const (
	SceneWidth     = 160
	SceneHeight    = 120
	SceneThreshold = 60
)

// Head returns a trackable detection at (x, y).
func Head(x, y int, h byte) frame.Detection {
	return frame.Detection{X: x, Y: y, Height: h, Width: 12, Length: 12}
}

// Walk returns one single-head frame per step from row y0 to row y1.
func Walk(x, y0, y1, step int, h byte) [][]frame.Detection {
	var out [][]frame.Detection
	if y1 >= y0 {
		for y := y0; y <= y1; y += step {
			out = append(out, []frame.Detection{Head(x, y, h)})
		}
	} else {
		for y := y0; y >= y1; y -= step {
			out = append(out, []frame.Detection{Head(x, y, h)})
		}
	}
	return out
}

// Idle returns n frames with nothing in view.
func Idle(n int) [][]frame.Detection {
	return make([][]frame.Detection, n)
}

// Crossing is a head walking straight down through the door line followed
// by enough idle frames for it to be counted.
func Crossing(x int) [][]frame.Detection {
	return append(Walk(x, 10, 110, 10, 80), Idle(30)...)
}

// BlackDisk flags a disk of black pixels at (row, col) in masks. With
// background set the disk is also flagged as background.
func BlackDisk(masks *frame.Masks, width, row, col, radius int, background bool) {
	height := len(masks.Black) / width
	for r := row - radius; r <= row+radius; r++ {
		for c := col - radius; c <= col+radius; c++ {
			if r < 0 || r >= height || c < 0 || c >= width {
				continue
			}
			if (r-row)*(r-row)+(c-col)*(c-col) > radius*radius {
				continue
			}
			masks.Black[r*width+c] = 1
			if background {
				masks.Background[r*width+c] = 1
			}
		}
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LocalHostRequest creates a request that passes tsweb's loopback-only
// debug access check.
func LocalHostRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

package outofrange

// Reliability decides whether the learned background can be trusted for
// out-of-range detection. It looks at the whole-frame black pixel count
// over fixed windows of frames.
type Reliability struct {
	interval          int
	unreliablePixels  int
	unreliablePercent int
	disablePixels     int

	frames   int
	over     int
	disabled bool
	reliable bool
}

// NewReliability returns a gate that starts out reliable.
func NewReliability(cfg Config) *Reliability {
	return &Reliability{
		interval:          max(cfg.CheckInterval, 1),
		unreliablePixels:  cfg.UnreliableFramePixels,
		unreliablePercent: cfg.UnreliableFramePercent,
		disablePixels:     cfg.DisablePixels,
		reliable:          true,
	}
}

// Observe records one frame and returns the current verdict. A frame over
// the disable threshold makes the background unreliable at once; otherwise
// the verdict is revised at the end of each window.
func (r *Reliability) Observe(blackPixels int) bool {
	r.frames++
	if blackPixels > r.unreliablePixels {
		r.over++
	}
	if blackPixels > r.disablePixels {
		r.disabled = true
		r.reliable = false
	}
	if r.frames >= r.interval {
		r.reliable = !r.disabled && r.over*100 < r.unreliablePercent*r.frames
		r.frames, r.over, r.disabled = 0, 0, false
	}
	return r.reliable
}

// Reliable returns the current verdict.
func (r *Reliability) Reliable() bool { return r.reliable }

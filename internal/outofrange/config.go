package outofrange

import "github.com/banshee-data/headcount/internal/config"

// Config holds the out-of-range compensation tuning.
type Config struct {
	Enabled         bool
	StaticBlobCheck bool

	MinDispForCheck    int // candidate heights and interesting disparities scale from this
	StaticRadius       int // minimum analysis window radius
	OnThreshold        int // black pixels needed to switch on, before mask scaling
	OffThreshold       int // black pixels below which it switches off, before mask scaling
	MaskedBlackPercent int // share of black pixels that must also be background-black
	SnapHeight         int // detections taller than this are always the candidate
	Hysteresis         int // half-width of the band around the door line
	CandidateMemory    int // frames a lost candidate position is still used for

	VirtualBlobMaxRadius   int
	VirtualBlobBorderWidth int
	KeepDistance           int // tracked objects this close to the centroid survive cleanup
	MinFrames              int // tracked objects with this many frames survive cleanup
	TrackingBorder         int // the virtual blob stays this far inside the map

	MaxNumFrameForStaticBlob int
	FrameToWaitToReEnable    int

	CheckInterval          int
	UnreliableFramePixels  int
	UnreliableFramePercent int
	DisablePixels          int
}

// DefaultConfig returns the configuration from the canonical tuning
// defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Enabled:                  cfg.GetOutOfRangeEnabled(),
		StaticBlobCheck:          cfg.GetStaticBlobCheck(),
		MinDispForCheck:          cfg.GetMinDispForOORCheck(),
		StaticRadius:             cfg.GetOORStaticRadius(),
		OnThreshold:              cfg.GetOOROnThreshold(),
		OffThreshold:             cfg.GetOOROffThreshold(),
		MaskedBlackPercent:       cfg.GetOORMaskedBlackPercent(),
		SnapHeight:               cfg.GetSnapHeight(),
		Hysteresis:               cfg.GetHysteresis(),
		CandidateMemory:          cfg.GetOORCandidateMemory(),
		VirtualBlobMaxRadius:     cfg.GetVirtualBlobMaxRadius(),
		VirtualBlobBorderWidth:   cfg.GetVirtualBlobBorderWidth(),
		KeepDistance:             cfg.GetVirtualBlobKeepDistance(),
		MinFrames:                cfg.GetVirtualBlobMinFrames(),
		TrackingBorder:           cfg.GetTrackingBorder(),
		MaxNumFrameForStaticBlob: cfg.GetMaxNumFrameForStaticBlob(),
		FrameToWaitToReEnable:    cfg.GetFrameToWaitToReEnable(),
		CheckInterval:            cfg.GetCheckInterval(),
		UnreliableFramePixels:    cfg.GetUnreliableFramePixels(),
		UnreliableFramePercent:   cfg.GetUnreliableFramePercent(),
		DisablePixels:            cfg.GetDisablePixels(),
	}
}

// MinCandidateHeight is the lowest detection height considered as an
// out-of-range candidate.
func (c Config) MinCandidateHeight() int { return c.MinDispForCheck * 8 }

// MinInteresting is the lowest disparity that counts as a real near object.
func (c Config) MinInteresting() int { return c.MinDispForCheck * 16 }

package tracking

import (
	"github.com/banshee-data/headcount/internal/config"
)

// Config holds the tracker's tuning. It is resolved once at startup.
type Config struct {
	Life          int // life credit ceiling
	LifeDec       int // life lost per unmatched frame
	MinNumFrames  int // matched frames needed before an object may count
	Hysteresis    int // half-width of the band around the door line, rows
	SnapHeight    int // detections taller than this are taken as-is
	NumPersSingle int // pool capacity per chained sensor
	MaxChain      int // longest supported sensor chain

	// Cost model
	MaxMovePercent      int     // max per-frame move as a percentage of MaxHeight
	HeadRayRatio        int     // MaxHeight divided by this gives the proximity radius
	HeightTolFloor      int     // constant part of the height tolerance
	HeightTolPercent    int     // share of Height added to the tolerance
	MaxHeightTolPercent int     // share of MaxHeight added to the tolerance
	EdgeTolMax          float32 // extra tolerance reached at the image corners
	EdgeSigmaDiv        float32 // image dimension over this is the Gaussian sigma

	// Conflict resolution
	ConflictCostRatioPercent int  // a claim this cheap relative to the other wins
	ConflictDisplacementMul  int  // a claim with this much more progress wins
	ConsistencyCheck         bool // enable the proximity consistency pass

	// Counting policy
	MinHeadHeight      int
	DisparityLevel     int
	CloseDoorThreshold int
	BgYMaxDelta        int
	DoorCloseStrategy  string

	DrawCrosses bool
}

// DefaultConfig returns the tracker configuration from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Life:                     cfg.GetLife(),
		LifeDec:                  cfg.GetLifeDec(),
		MinNumFrames:             cfg.GetMinNumFrames(),
		Hysteresis:               cfg.GetHysteresis(),
		SnapHeight:               cfg.GetSnapHeight(),
		NumPersSingle:            cfg.GetNumPersSingle(),
		MaxChain:                 cfg.GetMaxChain(),
		MaxMovePercent:           cfg.GetMaxMovePercent(),
		HeadRayRatio:             cfg.GetHeadRayRatio(),
		HeightTolFloor:           cfg.GetHeightTolFloor(),
		HeightTolPercent:         cfg.GetHeightTolPercent(),
		MaxHeightTolPercent:      cfg.GetMaxHeightTolPercent(),
		EdgeTolMax:               float32(cfg.GetEdgeTolMax()),
		EdgeSigmaDiv:             float32(cfg.GetEdgeSigmaDiv()),
		ConflictCostRatioPercent: cfg.GetConflictCostRatioPercent(),
		ConflictDisplacementMul:  cfg.GetConflictDisplacementMul(),
		ConsistencyCheck:         cfg.GetConsistencyCheck(),
		MinHeadHeight:            cfg.GetMinHeadHeight(),
		DisparityLevel:           cfg.GetDisparityLevel(),
		CloseDoorThreshold:       cfg.GetCloseDoorThreshold(),
		BgYMaxDelta:              cfg.GetBgYMaxDelta(),
		DoorCloseStrategy:        cfg.GetDoorCloseStrategy(),
		DrawCrosses:              cfg.GetDrawCrosses(),
	}
}

// InitLife is the life credit given to a freshly spawned object.
func (c Config) InitLife() int { return c.Life / 2 }

// MinCrossing is the signed displacement needed to cross the hysteresis band.
func (c Config) MinCrossing() int { return 2*c.Hysteresis + 1 }

// FrameParams carries the per-frame inputs resolved by the caller.
type FrameParams struct {
	Width, Height int // map geometry, chained width when sensors are chained

	DoorThreshold   int  // door line row
	InvertDirection bool // swap the entered/exited mapping
	MinYGap         int  // extra minimum displacement from the no-tracking zone

	MotionSeen             bool
	MotionDetectionEnabled bool
	DoorOpenEnabled        bool
	DoorTransition         bool // a door open/close transition is in progress

	// VirtualBlob is the synthetic blob injected this frame, if any.
	VirtualBlob *VirtualBlob
}

// VirtualBlob describes the synthetic blob injected into the map by the
// out-of-range compensation, for local noise suppression.
type VirtualBlob struct {
	Row, Col     int
	Radius       int
	KeepDistance int // objects this close to the centroid are kept
	MinFrames    int // objects with this many frames are kept
}

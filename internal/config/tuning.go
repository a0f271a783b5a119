package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Door-close strategies accepted by door_close_strategy.
const (
	DoorCloseTransplant = "transplant"
	DoorCloseReset      = "reset"
)

// TuningConfig represents the root configuration for the counting engine.
// Every field is optional; the Get* accessors carry the defaults so partial
// files are safe. Values are empirically tuned for one sensor geometry and
// frame rate and are kept here so they can be recalibrated without touching
// control flow.
type TuningConfig struct {
	// Door line and per-site inputs
	DoorThreshold          *int  `json:"door_threshold,omitempty"`
	InvertDirection        *bool `json:"invert_direction,omitempty"`
	MotionDetectionEnabled *bool `json:"motion_detection_enabled,omitempty"`
	DoorOpenEnabled        *bool `json:"door_open_enabled,omitempty"`
	MinYGap                *int  `json:"min_y_gap,omitempty"`
	ChainLength            *int  `json:"chain_length,omitempty"`

	// Tracked-object lifecycle
	Life          *int `json:"life,omitempty"`
	LifeDec       *int `json:"life_dec,omitempty"`
	MinNumFrames  *int `json:"min_num_frames,omitempty"`
	Hysteresis    *int `json:"hysteresis,omitempty"`
	SnapHeight    *int `json:"snap_height,omitempty"`
	NumPersSingle *int `json:"num_pers_single,omitempty"`
	MaxChain      *int `json:"max_chain,omitempty"`

	// Cost model
	MaxMovePercent      *int `json:"max_move_percent,omitempty"`
	HeadRayRatio        *int `json:"head_ray_ratio,omitempty"`
	HeightTolFloor      *int `json:"height_tol_floor,omitempty"`
	HeightTolPercent    *int `json:"height_tol_percent,omitempty"`
	MaxHeightTolPercent *int `json:"max_height_tol_percent,omitempty"`
	EdgeTolMax          *int `json:"edge_tol_max,omitempty"`
	EdgeSigmaDiv        *int `json:"edge_sigma_div,omitempty"`

	// Conflict resolution
	ConflictCostRatioPercent *int  `json:"conflict_cost_ratio_percent,omitempty"`
	ConflictDisplacementMul  *int  `json:"conflict_displacement_mul,omitempty"`
	ConsistencyCheck         *bool `json:"consistency_check,omitempty"`

	// Counting policy
	MinHeadHeight      *int    `json:"min_head_height,omitempty"`
	DisparityLevel     *int    `json:"disparity_level,omitempty"`
	CloseDoorThreshold *int    `json:"close_door_threshold,omitempty"`
	BgYMaxDelta        *int    `json:"bg_y_max_delta,omitempty"`
	DoorCloseStrategy  *string `json:"door_close_strategy,omitempty"`

	// Out-of-range compensation
	OutOfRangeEnabled        *bool `json:"out_of_range_enabled,omitempty"`
	StaticBlobCheck          *bool `json:"static_blob_check,omitempty"`
	MinDispForOORCheck       *int  `json:"min_disp_for_oor_check,omitempty"`
	OORStaticRadius          *int  `json:"oor_static_radius,omitempty"`
	OOROnThreshold           *int  `json:"oor_on_threshold,omitempty"`
	OOROffThreshold          *int  `json:"oor_off_threshold,omitempty"`
	OORMaskedBlackPercent    *int  `json:"oor_masked_black_percent,omitempty"`
	OORCandidateMemory       *int  `json:"oor_candidate_memory,omitempty"`
	VirtualBlobMaxRadius     *int  `json:"virtual_blob_max_radius,omitempty"`
	VirtualBlobBorderWidth   *int  `json:"virtual_blob_border_width,omitempty"`
	VirtualBlobKeepDistance  *int  `json:"virtual_blob_keep_distance,omitempty"`
	VirtualBlobMinFrames     *int  `json:"virtual_blob_min_frames,omitempty"`
	MaxNumFrameForStaticBlob *int  `json:"max_num_frame_for_static_blob,omitempty"`
	FrameToWaitToReEnable    *int  `json:"frame_to_wait_to_re_enable,omitempty"`
	TrackingBorder           *int  `json:"tracking_border,omitempty"`

	// Background reliability gate
	CheckInterval          *int `json:"check_interval,omitempty"`
	UnreliableFramePixels  *int `json:"unreliable_frame_pixels,omitempty"`
	UnreliableFramePercent *int `json:"unreliable_frame_percent,omitempty"`
	DisablePixels          *int `json:"disable_pixels,omitempty"`

	// Frame loop
	SkipIdenticalFrames *bool `json:"skip_identical_frames,omitempty"`
	DrawCrosses         *bool `json:"draw_crosses,omitempty"`

	// Snapshot flush
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "60s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/replay-plot/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Life != nil && *c.Life < 2 {
		return fmt.Errorf("life must be at least 2, got %d", *c.Life)
	}
	if c.LifeDec != nil && *c.LifeDec < 1 {
		return fmt.Errorf("life_dec must be positive, got %d", *c.LifeDec)
	}
	if c.Hysteresis != nil && *c.Hysteresis < 0 {
		return fmt.Errorf("hysteresis must be non-negative, got %d", *c.Hysteresis)
	}
	if c.NumPersSingle != nil && *c.NumPersSingle < 1 {
		return fmt.Errorf("num_pers_single must be positive, got %d", *c.NumPersSingle)
	}
	if c.ChainLength != nil && (*c.ChainLength < 1 || *c.ChainLength > c.GetMaxChain()) {
		return fmt.Errorf("chain_length must be between 1 and %d, got %d", c.GetMaxChain(), *c.ChainLength)
	}
	if c.HeadRayRatio != nil && *c.HeadRayRatio < 1 {
		return fmt.Errorf("head_ray_ratio must be positive, got %d", *c.HeadRayRatio)
	}
	if c.EdgeSigmaDiv != nil && *c.EdgeSigmaDiv < 1 {
		return fmt.Errorf("edge_sigma_div must be positive, got %d", *c.EdgeSigmaDiv)
	}
	if c.ConflictCostRatioPercent != nil && (*c.ConflictCostRatioPercent <= 0 || *c.ConflictCostRatioPercent > 100) {
		return fmt.Errorf("conflict_cost_ratio_percent must be in (0, 100], got %d", *c.ConflictCostRatioPercent)
	}
	if c.DoorCloseStrategy != nil {
		switch *c.DoorCloseStrategy {
		case DoorCloseTransplant, DoorCloseReset:
		default:
			return fmt.Errorf("door_close_strategy must be %q or %q, got %q", DoorCloseTransplant, DoorCloseReset, *c.DoorCloseStrategy)
		}
	}
	if c.OOROffThreshold != nil && c.OOROnThreshold != nil && *c.OOROffThreshold > *c.OOROnThreshold {
		return fmt.Errorf("oor_off_threshold (%d) must not exceed oor_on_threshold (%d)", *c.OOROffThreshold, *c.OOROnThreshold)
	}
	if c.VirtualBlobMaxRadius != nil && *c.VirtualBlobMaxRadius < 1 {
		return fmt.Errorf("virtual_blob_max_radius must be positive, got %d", *c.VirtualBlobMaxRadius)
	}
	if c.CheckInterval != nil && *c.CheckInterval < 1 {
		return fmt.Errorf("check_interval must be positive, got %d", *c.CheckInterval)
	}
	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}
	return nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// GetDoorThreshold returns the door line row.
func (c *TuningConfig) GetDoorThreshold() int { return intOr(c.DoorThreshold, 60) }

// GetInvertDirection reports whether entered/exited are swapped.
func (c *TuningConfig) GetInvertDirection() bool { return boolOr(c.InvertDirection, false) }

// GetMotionDetectionEnabled returns the motion_detection_enabled value or the default.
func (c *TuningConfig) GetMotionDetectionEnabled() bool {
	return boolOr(c.MotionDetectionEnabled, false)
}

// GetDoorOpenEnabled returns the door_open_enabled value or the default.
func (c *TuningConfig) GetDoorOpenEnabled() bool { return boolOr(c.DoorOpenEnabled, false) }

// GetMinYGap returns the min_y_gap value or the default.
func (c *TuningConfig) GetMinYGap() int { return intOr(c.MinYGap, 0) }

// GetChainLength returns the number of chained sensors.
func (c *TuningConfig) GetChainLength() int { return intOr(c.ChainLength, 1) }

// GetLife returns the maximum life credit of a tracked object.
func (c *TuningConfig) GetLife() int { return intOr(c.Life, 36) }

// GetLifeDec returns the life lost per unmatched frame.
func (c *TuningConfig) GetLifeDec() int { return intOr(c.LifeDec, 2) }

// GetMinNumFrames returns the min_num_frames value or the default.
func (c *TuningConfig) GetMinNumFrames() int { return intOr(c.MinNumFrames, 10) }

// GetHysteresis returns the half-width of the band around the door line.
func (c *TuningConfig) GetHysteresis() int { return intOr(c.Hysteresis, 9) }

// GetSnapHeight returns the height above which positions snap instead of blend.
func (c *TuningConfig) GetSnapHeight() int { return intOr(c.SnapHeight, 120) }

// GetNumPersSingle returns the per-sensor pool capacity.
func (c *TuningConfig) GetNumPersSingle() int { return intOr(c.NumPersSingle, 16) }

// GetMaxChain returns the longest supported sensor chain.
func (c *TuningConfig) GetMaxChain() int { return intOr(c.MaxChain, 8) }

// GetMaxMovePercent returns the max per-frame move as a percentage of max height.
func (c *TuningConfig) GetMaxMovePercent() int { return intOr(c.MaxMovePercent, 50) }

// GetHeadRayRatio returns the height-to-head-radius ratio.
func (c *TuningConfig) GetHeadRayRatio() int { return intOr(c.HeadRayRatio, 4) }

// GetHeightTolFloor returns the height_tol_floor value or the default.
func (c *TuningConfig) GetHeightTolFloor() int { return intOr(c.HeightTolFloor, 8) }

// GetHeightTolPercent returns the height_tol_percent value or the default.
func (c *TuningConfig) GetHeightTolPercent() int { return intOr(c.HeightTolPercent, 15) }

// GetMaxHeightTolPercent returns the max_height_tol_percent value or the default.
func (c *TuningConfig) GetMaxHeightTolPercent() int { return intOr(c.MaxHeightTolPercent, 10) }

// GetEdgeTolMax returns the extra height tolerance reached at the image edges.
func (c *TuningConfig) GetEdgeTolMax() int { return intOr(c.EdgeTolMax, 16) }

// GetEdgeSigmaDiv returns the divisor turning the image size into the falloff sigma.
func (c *TuningConfig) GetEdgeSigmaDiv() int { return intOr(c.EdgeSigmaDiv, 4) }

// GetConflictCostRatioPercent returns the conflict_cost_ratio_percent value or the default.
func (c *TuningConfig) GetConflictCostRatioPercent() int {
	return intOr(c.ConflictCostRatioPercent, 75)
}

// GetConflictDisplacementMul returns the conflict_displacement_mul value or the default.
func (c *TuningConfig) GetConflictDisplacementMul() int { return intOr(c.ConflictDisplacementMul, 2) }

// GetConsistencyCheck returns the consistency_check value or the default.
func (c *TuningConfig) GetConsistencyCheck() bool { return boolOr(c.ConsistencyCheck, false) }

// GetMinHeadHeight returns the min_head_height value or the default.
func (c *TuningConfig) GetMinHeadHeight() int { return intOr(c.MinHeadHeight, 48) }

// GetDisparityLevel returns the height span of one quantised disparity level.
func (c *TuningConfig) GetDisparityLevel() int { return intOr(c.DisparityLevel, 8) }

// GetCloseDoorThreshold returns the close_door_threshold value or the default.
func (c *TuningConfig) GetCloseDoorThreshold() int { return intOr(c.CloseDoorThreshold, 5) }

// GetBgYMaxDelta returns the bg_y_max_delta value or the default.
func (c *TuningConfig) GetBgYMaxDelta() int { return intOr(c.BgYMaxDelta, 3) }

// GetDoorCloseStrategy returns the door_close_strategy value or the default.
func (c *TuningConfig) GetDoorCloseStrategy() string {
	if c.DoorCloseStrategy == nil || *c.DoorCloseStrategy == "" {
		return DoorCloseTransplant
	}
	return *c.DoorCloseStrategy
}

// GetOutOfRangeEnabled returns the out_of_range_enabled value or the default.
func (c *TuningConfig) GetOutOfRangeEnabled() bool { return boolOr(c.OutOfRangeEnabled, true) }

// GetStaticBlobCheck returns the static_blob_check value or the default.
func (c *TuningConfig) GetStaticBlobCheck() bool { return boolOr(c.StaticBlobCheck, true) }

// GetMinDispForOORCheck returns the min_disp_for_oor_check value or the default.
func (c *TuningConfig) GetMinDispForOORCheck() int { return intOr(c.MinDispForOORCheck, 4) }

// GetOORStaticRadius returns the calibration-derived default search radius.
func (c *TuningConfig) GetOORStaticRadius() int { return intOr(c.OORStaticRadius, 20) }

// GetOOROnThreshold returns the oor_on_threshold value or the default.
func (c *TuningConfig) GetOOROnThreshold() int { return intOr(c.OOROnThreshold, 600) }

// GetOOROffThreshold returns the oor_off_threshold value or the default.
func (c *TuningConfig) GetOOROffThreshold() int { return intOr(c.OOROffThreshold, 300) }

// GetOORMaskedBlackPercent returns the oor_masked_black_percent value or the default.
func (c *TuningConfig) GetOORMaskedBlackPercent() int { return intOr(c.OORMaskedBlackPercent, 50) }

// GetOORCandidateMemory returns how many frames a lost candidate position is
// still used for.
func (c *TuningConfig) GetOORCandidateMemory() int { return intOr(c.OORCandidateMemory, 10) }

// GetVirtualBlobMaxRadius returns the virtual_blob_max_radius value or the default.
func (c *TuningConfig) GetVirtualBlobMaxRadius() int { return intOr(c.VirtualBlobMaxRadius, 40) }

// GetVirtualBlobBorderWidth returns the virtual_blob_border_width value or the default.
func (c *TuningConfig) GetVirtualBlobBorderWidth() int { return intOr(c.VirtualBlobBorderWidth, 3) }

// GetVirtualBlobKeepDistance returns the virtual_blob_keep_distance value or the default.
func (c *TuningConfig) GetVirtualBlobKeepDistance() int {
	return intOr(c.VirtualBlobKeepDistance, 10)
}

// GetVirtualBlobMinFrames returns the virtual_blob_min_frames value or the default.
func (c *TuningConfig) GetVirtualBlobMinFrames() int { return intOr(c.VirtualBlobMinFrames, 5) }

// GetMaxNumFrameForStaticBlob returns the max_num_frame_for_static_blob value or the default.
func (c *TuningConfig) GetMaxNumFrameForStaticBlob() int {
	return intOr(c.MaxNumFrameForStaticBlob, 150)
}

// GetFrameToWaitToReEnable returns the frame_to_wait_to_re_enable value or the default.
func (c *TuningConfig) GetFrameToWaitToReEnable() int {
	return intOr(c.FrameToWaitToReEnable, 500)
}

// GetTrackingBorder returns the tracking_border value or the default.
func (c *TuningConfig) GetTrackingBorder() int { return intOr(c.TrackingBorder, 4) }

// GetCheckInterval returns the check_interval value or the default.
func (c *TuningConfig) GetCheckInterval() int { return intOr(c.CheckInterval, 80) }

// GetUnreliableFramePixels returns the unreliable_frame_pixels value or the default.
func (c *TuningConfig) GetUnreliableFramePixels() int {
	return intOr(c.UnreliableFramePixels, 8000)
}

// GetUnreliableFramePercent returns the unreliable_frame_percent value or the default.
func (c *TuningConfig) GetUnreliableFramePercent() int {
	return intOr(c.UnreliableFramePercent, 25)
}

// GetDisablePixels returns the disable_pixels value or the default.
func (c *TuningConfig) GetDisablePixels() int { return intOr(c.DisablePixels, 30000) }

// GetSkipIdenticalFrames returns the skip_identical_frames value or the default.
func (c *TuningConfig) GetSkipIdenticalFrames() bool { return boolOr(c.SkipIdenticalFrames, false) }

// GetDrawCrosses returns the draw_crosses value or the default.
func (c *TuningConfig) GetDrawCrosses() bool { return boolOr(c.DrawCrosses, false) }

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

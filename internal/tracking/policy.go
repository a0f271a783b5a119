package tracking

// Zones relative to the door line at row thr, for a pool of direction d:
//
//	entry zone    the birth side, beyond the hysteresis band
//	critical zone inside the band
//	exit zone     the far side, beyond the band
func (c Config) inEntryZone(d Direction, y, thr int) bool {
	if d == FromHigh {
		return y < thr-c.Hysteresis
	}
	return y > thr+c.Hysteresis
}

func (c Config) inExitZone(d Direction, y, thr int) bool {
	if d == FromHigh {
		return y > thr+c.Hysteresis
	}
	return y < thr-c.Hysteresis
}

func (c Config) inCriticalZone(d Direction, y, thr int) bool {
	return !c.inEntryZone(d, y, thr) && !c.inExitZone(d, y, thr)
}

// isHead reports whether o was ever tall enough to be a head.
func (c Config) isHead(o *TrackedObject) bool {
	return o.MaxHeight > c.MinHeadHeight-c.DisparityLevel
}

// trackingRateEnough would compare matched frames against missed frames.
// Missed frames are not recorded, so every object passes.
func trackingRateEnough(*TrackedObject) bool { return true }

// isPersistent reports whether o has been matched for long enough.
func (c Config) isPersistent(o *TrackedObject) bool {
	return o.NumFrames >= c.MinNumFrames && trackingRateEnough(o)
}

// IsCountable reports whether o, owned by the pool of direction d, has
// completed a crossing of the door line.
func (c Config) IsCountable(o *TrackedObject, d Direction, p FrameParams) bool {
	progress := o.Progress(d)
	return c.isHead(o) &&
		c.isPersistent(o) &&
		progress >= c.MinCrossing() &&
		progress >= p.MinYGap &&
		c.inEntryZone(d, o.FirstY, p.DoorThreshold) &&
		c.inExitZone(d, o.Y, p.DoorThreshold)
}

// IsCountableOnClosure is the relaxed test used when the door closes with
// objects still mid-crossing.
func (c Config) IsCountableOnClosure(o *TrackedObject, d Direction) bool {
	return c.isPersistent(o) && o.Progress(d) >= 2*c.CloseDoorThreshold+1
}

// countsAsEntered maps a counted object of direction d to the entered
// counter, honouring the inverted-direction setting.
func countsAsEntered(d Direction, invert bool) bool {
	return (d == FromHigh) != invert
}

package audio

const (
	// DefaultSilenceThreshold is the scaled RMS below which a frame counts as
	// silent. Speech at normal capture levels sits well above this.
	DefaultSilenceThreshold = 5.0

	// DefaultSilentFrameFloor is the number of consecutive silent frames that
	// must accumulate before the gate starts suppressing. The asymmetry keeps
	// the leading edge of speech intact and stops the provider from timing
	// out on a briefly quiet speaker.
	DefaultSilentFrameFloor = 40
)

// EnergyGate is a hysteretic voice-activity gate over 16-bit PCM frames.
//
// A frame at or above the threshold is always forwarded and resets the
// silence run. A sub-threshold frame is still forwarded until the run
// reaches the floor; from then on sub-threshold frames are suppressed until
// voice returns.
//
// EnergyGate is not safe for concurrent use; each speaker stream owns one.
type EnergyGate struct {
	threshold float64
	floor     int

	silentRun int
	lastRMS   float64
}

// NewEnergyGate creates a gate with the given threshold and floor.
// Non-positive arguments fall back to the defaults.
func NewEnergyGate(threshold float64, floor int) *EnergyGate {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	if floor <= 0 {
		floor = DefaultSilentFrameFloor
	}
	return &EnergyGate{threshold: threshold, floor: floor}
}

// Admit reports whether frame should be forwarded to the transcription
// provider. It updates the gate's silence-run state as a side effect.
func (g *EnergyGate) Admit(frame []byte) bool {
	rms := RMS(frame)
	g.lastRMS = rms

	if rms >= g.threshold {
		g.silentRun = 0
		return true
	}

	g.silentRun++
	return g.silentRun < g.floor
}

// LastRMS returns the scaled RMS of the most recently admitted or rejected
// frame. Useful for level meters and debugging.
func (g *EnergyGate) LastRMS() float64 { return g.lastRMS }

// Suppressing reports whether the gate is currently inside a suppressed
// silence run.
func (g *EnergyGate) Suppressing() bool { return g.silentRun >= g.floor }

// Reset clears the silence run, e.g. after a stream restart.
func (g *EnergyGate) Reset() { g.silentRun = 0 }

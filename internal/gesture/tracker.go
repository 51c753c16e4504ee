package gesture

// Tracker defaults.
const (
	// DefaultPresenceThreshold is the summed unit intensity above which a
	// hand is considered present over the sensor.
	DefaultPresenceThreshold = 1000
	// DefaultMinActiveFrames is the number of consecutive frames at or above
	// the presence threshold a motion must last before its exit is classified.
	DefaultMinActiveFrames = 5

	// PositionSentinel replaces both end coordinates when a channel pair sums
	// to zero. It skews the slope of that motion toward the diagonal but keeps
	// the trial running.
	PositionSentinel = 1e-6
)

// TrackerConfig holds the thresholds used by a Tracker.
type TrackerConfig struct {
	PresenceThreshold uint64
	MinActiveFrames   int
}

// DefaultTrackerConfig returns the production thresholds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PresenceThreshold: DefaultPresenceThreshold,
		MinActiveFrames:   DefaultMinActiveFrames,
	}
}

// Tracker detects the start and end of a single hand motion over one unit.
//
// The first sample whose magnitude rises strictly above the presence
// threshold starts a motion and fixes its start position. The motion ends on
// the first sub-threshold sample that follows at least MinActiveFrames
// consecutive frames at or above the threshold; shorter dips reset the frame
// counter but keep the recorded start. A Tracker is not safe for concurrent
// use.
type Tracker struct {
	unit         Unit
	cfg          TrackerConfig
	state        TrackingState
	activeFrames int
	start        Position
}

// NewTracker returns an idle Tracker for unit. Zero config fields fall back
// to the defaults.
func NewTracker(unit Unit, cfg TrackerConfig) *Tracker {
	if cfg.PresenceThreshold == 0 {
		cfg.PresenceThreshold = DefaultPresenceThreshold
	}
	if cfg.MinActiveFrames <= 0 {
		cfg.MinActiveFrames = DefaultMinActiveFrames
	}
	return &Tracker{unit: unit, cfg: cfg, state: StateIdle}
}

// Unit returns the sensor unit the tracker reads.
func (t *Tracker) Unit() Unit { return t.unit }

// State returns the current tracking state.
func (t *Tracker) State() TrackingState { return t.state }

// ActiveFrames returns the current debounce count.
func (t *Tracker) ActiveFrames() int { return t.activeFrames }

// Step ingests one sample. When the sample completes a motion it returns the
// motion and true, and the tracker is left in StateReadyToClassify until the
// next call to Step.
func (t *Tracker) Step(s Sample) (Motion, bool) {
	if t.state == StateReadyToClassify {
		t.state = StateIdle
	}

	l := s.Magnitude(t.unit)
	thr := t.cfg.PresenceThreshold

	if l > thr && t.state == StateIdle {
		t.state = StateActive
		t.start = guardedPosition(s.Quad(t.unit))
	}

	var (
		m    Motion
		done bool
	)
	if l < thr && t.state == StateActive && t.activeFrames >= t.cfg.MinActiveFrames {
		m = Motion{Start: t.start, End: guardedPosition(s.Quad(t.unit))}
		done = true
		t.state = StateReadyToClassify
	}

	// The debounce counter runs on every sample, including the one that
	// started the motion.
	if l >= thr {
		t.activeFrames++
	} else {
		t.activeFrames = 0
	}

	return m, done
}

// PositionOf computes the light centroid of a unit quad:
// x = (Q1-Q0)/(Q1+Q0), y = (Q3-Q2)/(Q3+Q2). ok is false when either pair
// sums to zero, in which case the returned position is undefined.
func PositionOf(q [ChannelsPerUnit]float64) (p Position, ok bool) {
	sx := q[1] + q[0]
	sy := q[3] + q[2]
	if sx == 0 || sy == 0 {
		return Position{}, false
	}
	return Position{X: (q[1] - q[0]) / sx, Y: (q[3] - q[2]) / sy}, true
}

func guardedPosition(q [ChannelsPerUnit]float64) Position {
	p, ok := PositionOf(q)
	if !ok {
		return Position{X: PositionSentinel, Y: PositionSentinel}
	}
	return p
}

// Package simulate stands in for the operator and the board: it synthesizes
// photodiode samples of a hand performing whatever gesture the running trial
// asks for, so the test flow can be exercised without hardware.
package simulate

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/timeutil"
)

// Config tunes the simulated operator. Zero fields take the defaults.
type Config struct {
	// Mistakes is the number of wrong motions performed at the start of
	// every trial before the requested one.
	Mistakes int
	// MotionFrames is the number of above-threshold samples per motion.
	MotionFrames int
	// IdleFrames is the number of background samples before each motion.
	IdleFrames int
	// Magnitude is the summed unit intensity while the hand is present. It
	// must exceed the presence threshold, and a tenth of it must not.
	Magnitude uint32
	// Background is the per-channel reading with no hand present.
	Background uint32
	// Pace is slept before every sample to mimic the acquisition rate.
	Pace time.Duration
}

// DefaultConfig returns a well-behaved operator: no mistakes, twelve-frame
// motions at the 512 Hz / 8-sample buffer cadence.
func DefaultConfig() Config {
	return Config{
		MotionFrames: 12,
		IdleFrames:   4,
		Magnitude:    4000,
		Background:   20,
		Pace:         time.Second * 8 / 512,
	}
}

// Operator is a gesture.SampleSource driven by trial events.
type Operator struct {
	cfg   Config
	clock timeutil.Clock

	mu       sync.Mutex
	unit     gesture.Unit
	expected gesture.Gesture
	left     int
	queue    []gesture.Sample
	motions  int
}

var _ gesture.SampleSource = (*Operator)(nil)

// NewOperator returns an Operator using cfg.
func NewOperator(cfg Config) *Operator {
	def := DefaultConfig()
	if cfg.MotionFrames <= 0 {
		cfg.MotionFrames = def.MotionFrames
	}
	if cfg.IdleFrames < 0 {
		cfg.IdleFrames = 0
	}
	if cfg.Magnitude == 0 {
		cfg.Magnitude = def.Magnitude
	}
	if cfg.Mistakes < 0 {
		cfg.Mistakes = 0
	}
	return &Operator{cfg: cfg, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for pacing.
func (o *Operator) SetClock(clock timeutil.Clock) {
	o.clock = clock
}

// Observe follows the trial controller's events. Register it with
// gesture.Controller.AddListener.
func (o *Operator) Observe(ev gesture.TrialEvent) {
	if ev.Kind != gesture.EventTrialStarted {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unit = ev.Unit
	o.expected = ev.Expected
	o.left = o.cfg.Mistakes
	o.queue = o.queue[:0]
}

// Motions returns how many motions have been performed so far.
func (o *Operator) Motions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.motions
}

// Poll returns the next synthesized sample.
func (o *Operator) Poll(ctx context.Context) (gesture.Sample, error) {
	if err := ctx.Err(); err != nil {
		return gesture.Sample{}, err
	}
	if o.cfg.Pace > 0 {
		if err := o.clock.Sleep(ctx, o.cfg.Pace); err != nil {
			return gesture.Sample{}, err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.expected == "" {
		return o.background(), nil
	}
	if len(o.queue) == 0 {
		g := o.expected
		if o.left > 0 {
			o.left--
			g = Wrong(g)
		}
		o.queue = o.motion(g)
		o.motions++
	}
	s := o.queue[0]
	o.queue = o.queue[1:]
	return s, nil
}

// Wrong returns a gesture that is classified as a mismatch for g.
func Wrong(g gesture.Gesture) gesture.Gesture {
	switch g {
	case gesture.GestureLeft:
		return gesture.GestureRight
	case gesture.GestureRight:
		return gesture.GestureLeft
	case gesture.GestureUp:
		return gesture.GestureDown
	case gesture.GestureDown:
		return gesture.GestureUp
	default:
		return gesture.GestureLeft
	}
}

// Path returns the start and end hand positions of g.
func Path(g gesture.Gesture) (from, to gesture.Position) {
	switch g {
	case gesture.GestureLeft:
		return gesture.Position{X: 0.5}, gesture.Position{X: -0.5}
	case gesture.GestureRight:
		return gesture.Position{X: -0.5}, gesture.Position{X: 0.5}
	case gesture.GestureUp:
		return gesture.Position{Y: -0.5}, gesture.Position{Y: 0.5}
	case gesture.GestureDown:
		return gesture.Position{Y: 0.5}, gesture.Position{Y: -0.5}
	default:
		p := gesture.Position{X: 0.1, Y: 0.1}
		return p, p
	}
}

// motion queues idle samples, then the hand moving along g's path, then one
// faint sample at the end position as the hand withdraws. Callers hold mu.
func (o *Operator) motion(g gesture.Gesture) []gesture.Sample {
	from, to := Path(g)
	n := o.cfg.MotionFrames
	out := make([]gesture.Sample, 0, o.cfg.IdleFrames+n+1)
	for i := 0; i < o.cfg.IdleFrames; i++ {
		out = append(out, o.background())
	}
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n)
		p := gesture.Position{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f}
		out = append(out, o.handAt(p, o.cfg.Magnitude))
	}
	return append(out, o.handAt(to, o.cfg.Magnitude/10))
}

func (o *Operator) background() gesture.Sample {
	var s gesture.Sample
	for i := range s {
		s[i] = o.cfg.Background
	}
	return s
}

// handAt returns a sample whose o.unit quad has centroid p and total
// intensity mag, on top of the background of the other unit.
func (o *Operator) handAt(p gesture.Position, mag uint32) gesture.Sample {
	s := o.background()
	pair := float64(mag) / 2
	q1 := uint32(math.Round(pair * (1 + p.X) / 2))
	q3 := uint32(math.Round(pair * (1 + p.Y) / 2))
	base := o.unit.FirstChannel()
	s[base] = uint32(pair) - q1
	s[base+1] = q1
	s[base+2] = uint32(pair) - q3
	s[base+3] = q3
	return s
}

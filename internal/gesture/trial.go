package gesture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ALU-panda/production-tests/internal/monitoring"
	"github.com/ALU-panda/production-tests/internal/timeutil"
)

// DefaultMismatchBudget is the number of wrong gestures tolerated per trial.
// The trial fails on the first mismatch beyond it.
const DefaultMismatchBudget = 10

var (
	// ErrBudgetExhausted is returned when a trial sees more mismatches than
	// its budget allows.
	ErrBudgetExhausted = errors.New("gesture mismatch budget exhausted")
	// ErrTrialTimeout is returned when no matching gesture arrives before the
	// trial timeout. The trial may be retried.
	ErrTrialTimeout = errors.New("gesture trial timed out")
)

// SampleSource supplies calibrated samples. Poll blocks until the next
// sample is available or ctx is done.
type SampleSource interface {
	Poll(ctx context.Context) (Sample, error)
}

// SampleSourceFunc adapts a function to SampleSource.
type SampleSourceFunc func(ctx context.Context) (Sample, error)

// Poll calls f(ctx).
func (f SampleSourceFunc) Poll(ctx context.Context) (Sample, error) { return f(ctx) }

// TrialOutcome is the terminal state of a trial.
type TrialOutcome string

const (
	OutcomeSuccess TrialOutcome = "success"
	OutcomeFatal   TrialOutcome = "fatal"
	OutcomeTimeout TrialOutcome = "timeout"
)

// TrialResult summarizes one (unit, gesture) trial.
type TrialResult struct {
	Unit       Unit          `json:"-"`
	UnitName   string        `json:"unit"`
	Expected   Gesture       `json:"expected"`
	Outcome    TrialOutcome  `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Mismatches int           `json:"mismatches"`
	Unreliable int           `json:"unreliable"`
	Motions    int           `json:"motions"`
	Samples    int           `json:"samples"`
	Duration   time.Duration `json:"duration_ns"`
}

// EventKind identifies a TrialEvent.
type EventKind string

const (
	EventTrialStarted  EventKind = "trial_started"
	EventMotion        EventKind = "motion"
	EventTrialFinished EventKind = "trial_finished"
)

// TrialEvent reports progress of a running trial to listeners.
type TrialEvent struct {
	Kind       EventKind
	Unit       Unit
	Expected   Gesture
	Motion     Motion  // EventMotion only
	Verdict    Verdict // EventMotion only
	Mismatches int
	Budget     int
	Result     *TrialResult // EventTrialFinished only
}

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	Tracker        TrackerConfig
	ClickDistance  float64
	MismatchBudget int
	// TrialTimeout bounds a single trial. Zero waits forever.
	TrialTimeout time.Duration
}

// DefaultControllerConfig returns the production settings with no timeout.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Tracker:        DefaultTrackerConfig(),
		ClickDistance:  DefaultClickDistance,
		MismatchBudget: DefaultMismatchBudget,
	}
}

// Controller runs gesture trials against a SampleSource, one at a time.
type Controller struct {
	src       SampleSource
	cfg       ControllerConfig
	classify  func(Motion, Gesture) Verdict
	clock     timeutil.Clock
	listeners []func(TrialEvent)
}

// NewController creates a Controller reading from src.
func NewController(src SampleSource, cfg ControllerConfig) *Controller {
	if cfg.MismatchBudget <= 0 {
		cfg.MismatchBudget = DefaultMismatchBudget
	}
	return &Controller{
		src:      src,
		cfg:      cfg,
		classify: Classifier{ClickDistance: cfg.ClickDistance}.Classify,
		clock:    timeutil.RealClock{},
	}
}

// SetClock replaces the clock used to time trials.
func (c *Controller) SetClock(clock timeutil.Clock) {
	c.clock = clock
}

// AddListener registers fn to receive trial events. Listeners run
// synchronously on the trial goroutine.
func (c *Controller) AddListener(fn func(TrialEvent)) {
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) publish(ev TrialEvent) {
	for _, fn := range c.listeners {
		fn(ev)
	}
}

// RunTrial waits for the operator to perform expected over unit.
//
// It returns a nil error with OutcomeSuccess on the first matching motion.
// More than MismatchBudget wrong motions return ErrBudgetExhausted, an
// expired TrialTimeout returns ErrTrialTimeout, and any other source or
// context error is returned wrapped. The result is populated in every case.
func (c *Controller) RunTrial(ctx context.Context, unit Unit, expected Gesture) (TrialResult, error) {
	res := TrialResult{Unit: unit, UnitName: unit.String(), Expected: expected}
	if !unit.Valid() {
		return c.fail(res, OutcomeFatal, fmt.Errorf("invalid sensor unit %d", int(unit)))
	}
	if !expected.Valid() {
		return c.fail(res, OutcomeFatal, fmt.Errorf("invalid gesture %q", expected))
	}

	trialCtx := ctx
	if c.cfg.TrialTimeout > 0 {
		var cancel context.CancelFunc
		trialCtx, cancel = context.WithTimeout(ctx, c.cfg.TrialTimeout)
		defer cancel()
	}

	started := c.clock.Now()
	tracker := NewTracker(unit, c.cfg.Tracker)
	c.publish(TrialEvent{Kind: EventTrialStarted, Unit: unit, Expected: expected, Budget: c.cfg.MismatchBudget})
	monitoring.Logf("trial %s %s started (budget %d, timeout %s)", unit, expected, c.cfg.MismatchBudget, c.cfg.TrialTimeout)

	for {
		sample, err := c.src.Poll(trialCtx)
		if err != nil {
			res.Duration = c.clock.Since(started)
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return c.fail(res, OutcomeTimeout, fmt.Errorf("%w: %s %s after %s", ErrTrialTimeout, unit, expected, c.cfg.TrialTimeout))
			}
			return c.fail(res, OutcomeFatal, fmt.Errorf("polling samples for %s: %w", unit, err))
		}
		res.Samples++

		motion, ok := tracker.Step(sample)
		if !ok {
			continue
		}
		res.Motions++

		verdict := c.classify(motion, expected)
		switch verdict {
		case VerdictMismatched:
			res.Mismatches++
		case VerdictUnreliable:
			res.Unreliable++
		}
		monitoring.Logf("trial %s %s: motion %+v -> %+v: %s (mismatches %d/%d)",
			unit, expected, motion.Start, motion.End, verdict, res.Mismatches, c.cfg.MismatchBudget)
		c.publish(TrialEvent{
			Kind:       EventMotion,
			Unit:       unit,
			Expected:   expected,
			Motion:     motion,
			Verdict:    verdict,
			Mismatches: res.Mismatches,
			Budget:     c.cfg.MismatchBudget,
		})

		if verdict == VerdictMatched {
			res.Outcome = OutcomeSuccess
			res.Duration = c.clock.Since(started)
			c.finish(&res)
			return res, nil
		}
		if res.Mismatches > c.cfg.MismatchBudget {
			res.Duration = c.clock.Since(started)
			return c.fail(res, OutcomeFatal, fmt.Errorf("%w: %d wrong gestures on %s", ErrBudgetExhausted, res.Mismatches, unit))
		}
	}
}

func (c *Controller) fail(res TrialResult, outcome TrialOutcome, err error) (TrialResult, error) {
	res.Outcome = outcome
	res.Reason = err.Error()
	c.finish(&res)
	return res, err
}

func (c *Controller) finish(res *TrialResult) {
	monitoring.Logf("trial %s %s finished: %s %s", res.UnitName, res.Expected, res.Outcome, res.Reason)
	c.publish(TrialEvent{
		Kind:       EventTrialFinished,
		Unit:       res.Unit,
		Expected:   res.Expected,
		Mismatches: res.Mismatches,
		Budget:     c.cfg.MismatchBudget,
		Result:     res,
	})
}

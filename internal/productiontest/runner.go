// Package productiontest runs the operator-guided gesture detection test of
// the EVAL-CN0569-PMDZ: it confirms the operator is ready, prepares the
// sensor, and walks both photodiode units through every gesture.
package productiontest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/monitoring"
	"github.com/ALU-panda/production-tests/internal/report"
	"github.com/ALU-panda/production-tests/internal/timeutil"
)

// Board is the product under test.
const Board = "EVAL-CN0569-PMDZ"

// ErrAborted is returned when the operator declines to run or retry the test.
var ErrAborted = errors.New("test aborted by operator")

// Step is one trial of the test sequence.
type Step struct {
	Unit    gesture.Unit
	Gesture gesture.Gesture
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s", s.Unit, s.Gesture)
}

// Sequence returns the fixed trial order: every gesture in turn, first on
// U1 and then on U2.
func Sequence() []Step {
	steps := make([]Step, 0, len(gesture.Gestures)*len(gesture.Units))
	for _, g := range gesture.Gestures {
		for _, u := range gesture.Units {
			steps = append(steps, Step{Unit: u, Gesture: g})
		}
	}
	return steps
}

// SummaryPublisher receives the summary of a finished run.
type SummaryPublisher interface {
	PublishSummary(report.Summary) error
}

// Options configures a Runner. In, Out and Source are required.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Source gesture.SampleSource

	// Setup prepares the sensor once the operator confirms. Nil skips it.
	Setup func(ctx context.Context) error

	Controller gesture.ControllerConfig
	// Pause is slept after every passed trial.
	Pause time.Duration
	// AbortDelay is slept after the operator declines, before returning.
	AbortDelay time.Duration
	Clock      timeutil.Clock
	// RunID identifies the run; a random UUID is used when empty.
	RunID   string
	Station string

	// Listeners receive every trial event, after the operator feedback.
	Listeners []func(gesture.TrialEvent)
	Summary   SummaryPublisher
}

// Runner drives one production test run.
type Runner struct {
	opts   Options
	prompt *prompter
	ctrl   *gesture.Controller
	clock  timeutil.Clock
}

// NewRunner builds a Runner from opts.
func NewRunner(opts Options) *Runner {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	r := &Runner{
		opts:   opts,
		prompt: newPrompter(opts.In, opts.Out),
		ctrl:   gesture.NewController(opts.Source, opts.Controller),
		clock:  opts.Clock,
	}
	r.ctrl.SetClock(opts.Clock)
	r.ctrl.AddListener(r.feedback)
	for _, fn := range opts.Listeners {
		r.ctrl.AddListener(fn)
	}
	return r
}

// Run executes the whole test. It returns nil only when every trial passed.
// A Runner runs once; its operator input is released when Run returns.
// The summary is populated, and published when a SummaryPublisher is set, in
// every case.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	sum := report.Summary{
		RunID:   r.opts.RunID,
		Board:   Board,
		Station: r.opts.Station,
		Started: r.clock.Now(),
		Trials:  []gesture.TrialResult{},
	}
	monitoring.Logf("run %s started", r.opts.RunID)

	err := r.run(ctx, &sum)
	r.prompt.close()

	sum.Finished = r.clock.Now()
	sum.Passed = err == nil
	sum.Aborted = errors.Is(err, ErrAborted)
	if err != nil {
		sum.Error = err.Error()
	}
	monitoring.Logf("run %s finished: passed=%t trials=%d err=%v", r.opts.RunID, sum.Passed, len(sum.Trials), err)
	if r.opts.Summary != nil {
		if perr := r.opts.Summary.PublishSummary(sum); perr != nil {
			monitoring.Logf("publishing run summary: %v", perr)
		}
	}
	return sum, err
}

func (r *Runner) run(ctx context.Context, sum *report.Summary) error {
	p := r.prompt
	p.say("\nThis test script will now test for gesture detection on the %s.\n"+
		"Please ensure that there are no objects in the immediate surroundings of the boards.", Board)

	ok, err := p.confirm(ctx, "Do you wish to continue?")
	if err != nil {
		return err
	}
	if !ok {
		return r.abort(ctx)
	}

	if r.opts.Setup != nil {
		p.say("\nConfiguring the ADPD1080. Please wait....")
		if err := r.opts.Setup(ctx); err != nil {
			p.say("\nUnable to configure the ADPD1080. Please recheck hardware connections and try again.")
			return fmt.Errorf("configuring sensor: %w", err)
		}
	}

	p.say("\nGesture detection algorithm is now running. Please perform the appropriate hand movement when prompted.")

	for _, step := range Sequence() {
		if err := r.runStep(ctx, step, sum); err != nil {
			return err
		}
		if err := r.clock.Sleep(ctx, r.opts.Pause); err != nil {
			return err
		}
	}

	p.say("\nGesture detection PASSED! Test script has finished.\n")
	return nil
}

// runStep runs one trial, offering a retry whenever it times out.
func (r *Runner) runStep(ctx context.Context, step Step, sum *report.Summary) error {
	p := r.prompt
	for {
		p.say("\n%s", Instruction(step))
		res, err := r.ctrl.RunTrial(ctx, step.Unit, step.Gesture)
		sum.Trials = append(sum.Trials, res)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gesture.ErrTrialTimeout):
			p.say("   No gesture detected on %s within %s.", step.Unit, r.opts.Controller.TrialTimeout)
			retry, perr := p.confirm(ctx, fmt.Sprintf("Retry the %q test on %s?", step.Gesture, step.Unit))
			if perr != nil {
				return perr
			}
			if !retry {
				return r.abort(ctx)
			}
		case errors.Is(err, gesture.ErrBudgetExhausted):
			p.say("\nGesture detection FAILED! Please check if there are any obstructions in front of %s and try again.\n", step.Unit)
			return err
		default:
			return err
		}
	}
}

func (r *Runner) abort(ctx context.Context) error {
	r.prompt.say("\nAborting test...\n")
	if err := r.clock.Sleep(ctx, r.opts.AbortDelay); err != nil {
		return err
	}
	return ErrAborted
}

// feedback tells the operator how each motion was judged.
func (r *Runner) feedback(ev gesture.TrialEvent) {
	if ev.Kind != gesture.EventMotion {
		return
	}
	switch ev.Verdict {
	case gesture.VerdictMatched:
		r.prompt.say("   %s %q gesture detection successful.", ev.Unit, ev.Expected)
	case gesture.VerdictMismatched:
		r.prompt.say("   Wrong gesture detected (expected: %q). Please try again.", ev.Expected)
	case gesture.VerdictUnreliable:
		r.prompt.say("   Gesture data is unreliable (expected: %q). Please try again.", ev.Expected)
	}
}

// Instruction returns the operator prompt for step.
func Instruction(step Step) string {
	if step.Gesture == gesture.GestureClick {
		return fmt.Sprintf("Testing %q gesture detection using %s. Hold your hand over %s and then slowly move it toward the evaluation board.",
			step.Gesture, step.Unit, step.Unit)
	}
	return fmt.Sprintf("Testing %q gesture detection using %s. Hold your hand over the evaluation board and then slowly move it %s across %s.",
		step.Gesture, step.Unit, step.Gesture, step.Unit)
}

// Package runstatus tracks the progress of a production test run and serves
// it on the tsweb debug page.
package runstatus

import (
	"sync"
	"time"

	"github.com/ALU-panda/production-tests/internal/gesture"
)

// Status tracks the progress of a test run for the debug page. It is fed by
// gesture.Controller listeners on the trial goroutine and read by HTTP
// handlers, so every access is locked.
type Status struct {
	mu sync.Mutex

	runID       string
	started     time.Time
	unit        string
	expected    gesture.Gesture
	mismatches  int
	budget      int
	lastVerdict gesture.Verdict
	lastMotion  gesture.Motion
	motions     int
	passed      int
	failed      int
	results     []gesture.TrialResult
}

// NewStatus returns an empty Status for runID.
func NewStatus(runID string, started time.Time) *Status {
	return &Status{runID: runID, started: started}
}

// Observe records a trial event. Its signature matches
// gesture.Controller.AddListener.
func (s *Status) Observe(ev gesture.TrialEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case gesture.EventTrialStarted:
		s.unit = ev.Unit.String()
		s.expected = ev.Expected
		s.mismatches = 0
		s.budget = ev.Budget
		s.lastVerdict = ""
		s.lastMotion = gesture.Motion{}
	case gesture.EventMotion:
		s.motions++
		s.mismatches = ev.Mismatches
		s.lastVerdict = ev.Verdict
		s.lastMotion = ev.Motion
	case gesture.EventTrialFinished:
		if ev.Result == nil {
			return
		}
		if ev.Result.Outcome == gesture.OutcomeSuccess {
			s.passed++
		} else {
			s.failed++
		}
		s.results = append(s.results, *ev.Result)
	}
}

// Snapshot is a point-in-time copy of a Status.
type Snapshot struct {
	RunID       string                `json:"run_id"`
	Started     time.Time             `json:"started"`
	Unit        string                `json:"unit"`
	Expected    gesture.Gesture       `json:"expected"`
	Mismatches  int                   `json:"mismatches"`
	Budget      int                   `json:"budget"`
	LastVerdict gesture.Verdict       `json:"last_verdict,omitempty"`
	LastMotion  gesture.Motion        `json:"last_motion"`
	Motions     int                   `json:"motions"`
	Passed      int                   `json:"passed"`
	Failed      int                   `json:"failed"`
	Results     []gesture.TrialResult `json:"results"`
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]gesture.TrialResult, len(s.results))
	copy(results, s.results)
	return Snapshot{
		RunID:       s.runID,
		Started:     s.started,
		Unit:        s.unit,
		Expected:    s.expected,
		Mismatches:  s.mismatches,
		Budget:      s.budget,
		LastVerdict: s.lastVerdict,
		LastMotion:  s.lastMotion,
		Motions:     s.motions,
		Passed:      s.passed,
		Failed:      s.failed,
		Results:     results,
	}
}

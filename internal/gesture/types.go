// Package gesture turns a stream of photodiode intensity samples into
// classified hand gestures for the CN0569 production test.
//
// A Tracker watches the four channels of one sensor unit and reports the
// start and end position of each motion, Classify maps that pair onto a
// Verdict for the gesture the operator was asked to perform, and a
// Controller runs one trial against a live SampleSource until the gesture
// matches or the mismatch budget is spent.
package gesture

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// NumChannels is the number of photodiode channels in one sample.
const NumChannels = 8

// ChannelsPerUnit is the number of photodiode channels owned by one sensor unit.
const ChannelsPerUnit = 4

// Sample holds one aggregated intensity reading per photodiode channel.
// Channels 0-3 belong to UnitA (U1), channels 4-7 to UnitB (U2).
type Sample [NumChannels]uint32

// Quad returns the four channels belonging to unit.
func (s Sample) Quad(unit Unit) [ChannelsPerUnit]float64 {
	var q [ChannelsPerUnit]float64
	base := unit.FirstChannel()
	for i := range q {
		q[i] = float64(s[base+i])
	}
	return q
}

// Magnitude returns the summed intensity of the four channels of unit.
func (s Sample) Magnitude(unit Unit) uint64 {
	var l uint64
	base := unit.FirstChannel()
	for i := 0; i < ChannelsPerUnit; i++ {
		l += uint64(s[base+i])
	}
	return l
}

// Unit identifies one photodiode sensor on the board.
type Unit int

const (
	UnitA Unit = iota // U1, channels 0-3
	UnitB             // U2, channels 4-7
)

// Units lists the sensor units in test order.
var Units = []Unit{UnitA, UnitB}

// FirstChannel returns the index of the unit's first channel in a Sample.
func (u Unit) FirstChannel() int {
	return int(u) * ChannelsPerUnit
}

// String returns the board silkscreen designator ("U1", "U2").
func (u Unit) String() string {
	return fmt.Sprintf("U%d", int(u)+1)
}

// Valid reports whether u names a unit present on the board.
func (u Unit) Valid() bool {
	return u == UnitA || u == UnitB
}

// Gesture enumerates the hand motions the test asks for.
type Gesture string

const (
	GestureLeft  Gesture = "LEFT"
	GestureRight Gesture = "RIGHT"
	GestureUp    Gesture = "UP"
	GestureDown  Gesture = "DOWN"
	GestureClick Gesture = "CLICK"
)

// Gestures lists every gesture in test order.
var Gestures = []Gesture{GestureLeft, GestureRight, GestureUp, GestureDown, GestureClick}

// Valid reports whether g is one of the five supported gestures.
func (g Gesture) Valid() bool {
	switch g {
	case GestureLeft, GestureRight, GestureUp, GestureDown, GestureClick:
		return true
	}
	return false
}

// Position is the normalized centroid of light on a unit. Both axes are
// nominally within [-1, 1].
type Position = r2.Vec

// Motion is the start/end position pair of one completed hand movement.
type Motion struct {
	Start Position
	End   Position
}

// Verdict is the classification of one Motion against an expected gesture.
type Verdict string

const (
	VerdictMatched    Verdict = "matched"
	VerdictMismatched Verdict = "mismatched"
	VerdictUnreliable Verdict = "unreliable" // slope exactly ±1, retry without penalty
)

// TrackingState is the lifecycle state of a Tracker.
type TrackingState string

const (
	StateIdle            TrackingState = "idle"
	StateActive          TrackingState = "active"
	StateReadyToClassify TrackingState = "ready_to_classify"
)

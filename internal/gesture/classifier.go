package gesture

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// DefaultClickDistance is the net displacement below which a motion
	// counts as a press toward the board.
	DefaultClickDistance = 0.07

	// SlopeEpsilon is added to the horizontal displacement before dividing,
	// so a purely vertical motion yields a very large slope instead of a
	// division by zero.
	SlopeEpsilon = 1e-6
)

// Classifier maps motions onto verdicts. The zero value uses
// DefaultClickDistance.
type Classifier struct {
	ClickDistance float64
}

// Displacement returns the distance and slope of m, measured start minus end.
func Displacement(m Motion) (distance, slope float64) {
	delta := r2.Sub(m.Start, m.End)
	return r2.Norm(delta), delta.Y / (delta.X + SlopeEpsilon)
}

// Classify reports whether m is the expected gesture.
//
// A short motion matches CLICK before any slope test runs. Every other
// expectation, including a short motion that was not expected to be a
// CLICK, is judged by slope: steeper than ±1 is vertical, shallower is
// horizontal, and exactly ±1 cannot be attributed to either axis.
func (c Classifier) Classify(m Motion, expected Gesture) Verdict {
	clickDistance := c.ClickDistance
	if clickDistance <= 0 {
		clickDistance = DefaultClickDistance
	}

	d, slope := Displacement(m)
	if d < clickDistance && expected == GestureClick {
		return VerdictMatched
	}

	switch s := math.Abs(slope); {
	case s > 1:
		if (m.Start.Y < m.End.Y && expected == GestureUp) ||
			(m.Start.Y > m.End.Y && expected == GestureDown) {
			return VerdictMatched
		}
		return VerdictMismatched
	case s < 1:
		if (m.Start.X < m.End.X && expected == GestureRight) ||
			(m.Start.X > m.End.X && expected == GestureLeft) {
			return VerdictMatched
		}
		return VerdictMismatched
	default:
		return VerdictUnreliable
	}
}

// Classify runs the default Classifier.
func Classify(m Motion, expected Gesture) Verdict {
	return Classifier{}.Classify(m, expected)
}

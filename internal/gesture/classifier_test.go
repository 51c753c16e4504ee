package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		start    Position
		end      Position
		expected Gesture
		want     Verdict
	}{
		{name: "rightward swipe", start: Position{X: -0.4}, end: Position{X: 0.4}, expected: GestureRight, want: VerdictMatched},
		{name: "leftward swipe", start: Position{X: 0.4}, end: Position{X: -0.4}, expected: GestureLeft, want: VerdictMatched},
		{name: "upward swipe", start: Position{Y: -0.4}, end: Position{Y: 0.4}, expected: GestureUp, want: VerdictMatched},
		{name: "downward swipe", start: Position{Y: 0.4}, end: Position{Y: -0.4}, expected: GestureDown, want: VerdictMatched},
		{name: "press", start: Position{X: 0.01, Y: 0.01}, end: Position{X: 0.02, Y: 0.02}, expected: GestureClick, want: VerdictMatched},
		{name: "rightward swipe expected left", start: Position{X: -0.4}, end: Position{X: 0.4}, expected: GestureLeft, want: VerdictMismatched},
		{name: "upward swipe expected down", start: Position{Y: -0.4}, end: Position{Y: 0.4}, expected: GestureDown, want: VerdictMismatched},
		{name: "upward swipe expected right", start: Position{Y: -0.4}, end: Position{Y: 0.4}, expected: GestureRight, want: VerdictMismatched},
		{name: "long swipe expected click", start: Position{X: -0.4}, end: Position{X: 0.4}, expected: GestureClick, want: VerdictMismatched},
		{name: "mostly horizontal diagonal", start: Position{X: -0.5, Y: -0.2}, end: Position{X: 0.5, Y: 0.2}, expected: GestureRight, want: VerdictMatched},
		{name: "mostly vertical diagonal", start: Position{X: 0.2, Y: 0.5}, end: Position{X: -0.2, Y: -0.5}, expected: GestureDown, want: VerdictMatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Motion{Start: tt.start, End: tt.end}, tt.expected)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_PureRightwardMotion(t *testing.T) {
	t.Parallel()

	for _, x0 := range []float64{-0.9, -0.5, -0.25, 0, 0.3} {
		for _, y := range []float64{-0.5, 0, 0.5} {
			m := Motion{Start: Position{X: x0, Y: y}, End: Position{X: x0 + 0.5, Y: y}}
			assert.Equal(t, VerdictMatched, Classify(m, GestureRight), "start %v", m.Start)
			for _, g := range []Gesture{GestureLeft, GestureUp, GestureDown} {
				assert.Equal(t, VerdictMismatched, Classify(m, g), "start %v expected %s", m.Start, g)
			}
		}
	}
}

func TestClassify_ShortMotionMatchesClickAtAnySlope(t *testing.T) {
	t.Parallel()

	for deg := 0; deg < 360; deg += 15 {
		rad := float64(deg) * math.Pi / 180
		for _, d := range []float64{0, 0.01, 0.05, 0.069} {
			m := Motion{
				Start: Position{X: 0.1, Y: -0.1},
				End:   Position{X: 0.1 + d*math.Cos(rad), Y: -0.1 + d*math.Sin(rad)},
			}
			assert.Equal(t, VerdictMatched, Classify(m, GestureClick), "deg %d d %v", deg, d)
		}
	}
}

// A short motion is only a press when a press was asked for; otherwise it
// is still judged by direction.
func TestClassify_ShortMotionFallsThroughToSlope(t *testing.T) {
	t.Parallel()

	m := Motion{Start: Position{X: 0, Y: 0}, End: Position{X: 0, Y: 0.03}}
	d, _ := Displacement(m)
	assert.Less(t, d, DefaultClickDistance)
	assert.Equal(t, VerdictMatched, Classify(m, GestureUp))
	assert.Equal(t, VerdictMismatched, Classify(m, GestureDown))
	assert.Equal(t, VerdictMatched, Classify(m, GestureClick))
}

func TestClassify_StationaryMotionIsHorizontal(t *testing.T) {
	t.Parallel()

	m := Motion{Start: Position{X: 0.3, Y: 0.3}, End: Position{X: 0.3, Y: 0.3}}
	for _, g := range []Gesture{GestureLeft, GestureRight, GestureUp, GestureDown} {
		assert.Equal(t, VerdictMismatched, Classify(m, g), g)
	}
}

func TestClassify_UnitSlopeIsUnreliable(t *testing.T) {
	t.Parallel()

	// dy equals dx+SlopeEpsilon bit for bit, so the slope is exactly ±1.
	half := 0.5
	leg := half + SlopeEpsilon
	for _, m := range []Motion{
		{Start: Position{X: 0.5, Y: leg}, End: Position{}},
		{Start: Position{X: 0.5, Y: -leg}, End: Position{}},
	} {
		_, slope := Displacement(m)
		assert.Equal(t, 1.0, math.Abs(slope))
		for _, g := range Gestures {
			assert.Equal(t, VerdictUnreliable, Classify(m, g), g)
		}
	}
}

func TestClassify_VerticalMotionDoesNotDivideByZero(t *testing.T) {
	t.Parallel()

	m := Motion{Start: Position{X: 0.2, Y: -0.3}, End: Position{X: 0.2, Y: 0.3}}
	_, slope := Displacement(m)
	assert.False(t, math.IsInf(slope, 0))
	assert.False(t, math.IsNaN(slope))
	assert.Equal(t, VerdictMatched, Classify(m, GestureUp))
}

func TestClassify_Idempotent(t *testing.T) {
	t.Parallel()

	motions := []Motion{
		{Start: Position{X: -0.4}, End: Position{X: 0.4}},
		{Start: Position{Y: 0.7}, End: Position{X: 0.1, Y: -0.2}},
		{Start: Position{X: 0.01}, End: Position{X: 0.02}},
		{Start: Position{X: PositionSentinel, Y: PositionSentinel}, End: Position{X: 0.3, Y: -0.1}},
	}
	for _, m := range motions {
		for _, g := range Gestures {
			first := Classify(m, g)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, Classify(m, g))
			}
		}
	}
}

func TestClassifier_CustomClickDistance(t *testing.T) {
	t.Parallel()

	m := Motion{Start: Position{X: 0}, End: Position{X: 0.1}}
	assert.Equal(t, VerdictMismatched, Classify(m, GestureClick))
	assert.Equal(t, VerdictMatched, Classifier{ClickDistance: 0.2}.Classify(m, GestureClick))
}

func TestDisplacement(t *testing.T) {
	t.Parallel()

	d, slope := Displacement(Motion{Start: Position{X: 0.3, Y: 0.4}, End: Position{}})
	assert.InDelta(t, 0.5, d, 1e-12)
	assert.InDelta(t, 0.4/0.3, slope, 1e-5)
}

func TestUnit_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "U1", UnitA.String())
	assert.Equal(t, "U2", UnitB.String())
	assert.Equal(t, 4, UnitB.FirstChannel())
	assert.False(t, Unit(2).Valid())
}

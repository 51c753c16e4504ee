package gesture

import (
	"context"
	"math"
	"sync"
)

// quadAt returns channel values whose centroid is (x, y) with total
// intensity mag.
func quadAt(x, y float64, mag uint32) [ChannelsPerUnit]uint32 {
	pair := float64(mag) / 2
	q1 := uint32(math.Round(pair * (1 + x) / 2))
	q3 := uint32(math.Round(pair * (1 + y) / 2))
	return [ChannelsPerUnit]uint32{uint32(pair) - q1, q1, uint32(pair) - q3, q3}
}

func sampleFor(unit Unit, q [ChannelsPerUnit]uint32) Sample {
	var s Sample
	copy(s[unit.FirstChannel():], q[:])
	return s
}

// motionSamples synthesizes one complete hand motion from `from` to `to`
// over unit: one entry sample, frames-1 samples in between, and one
// sub-threshold exit sample at `to`.
func motionSamples(unit Unit, from, to Position, frames int) []Sample {
	out := make([]Sample, 0, frames+1)
	for i := 0; i < frames; i++ {
		f := float64(i) / float64(frames)
		p := Position{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f}
		out = append(out, sampleFor(unit, quadAt(p.X, p.Y, 2000)))
	}
	return append(out, sampleFor(unit, quadAt(to.X, to.Y, 400)))
}

func constantSamples(unit Unit, q [ChannelsPerUnit]uint32, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = sampleFor(unit, q)
	}
	return out
}

// scriptedSource replays samples in order and then blocks until the context
// is done.
type scriptedSource struct {
	mu      sync.Mutex
	samples []Sample
	polls   int
	onPoll  func()
}

func newScriptedSource(batches ...[]Sample) *scriptedSource {
	src := &scriptedSource{}
	for _, b := range batches {
		src.samples = append(src.samples, b...)
	}
	return src
}

func (s *scriptedSource) Poll(ctx context.Context) (Sample, error) {
	s.mu.Lock()
	if s.onPoll != nil {
		s.onPoll()
	}
	if s.polls < len(s.samples) {
		smp := s.samples[s.polls]
		s.polls++
		s.mu.Unlock()
		return smp, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return Sample{}, ctx.Err()
}

func (s *scriptedSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

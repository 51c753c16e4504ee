package timeutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_Sleep(t *testing.T) {
	clock := RealClock{}
	start := time.Now()
	if err := clock.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Sleep() returned early")
	}
}

func TestRealClock_SleepCancelled(t *testing.T) {
	clock := RealClock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := clock.Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly after cancellation")
	}
}

func TestRealClock_SleepZero(t *testing.T) {
	if err := (RealClock{}).Sleep(context.Background(), 0); err != nil {
		t.Fatalf("Sleep(0) error = %v", err)
	}
}

func TestMockClock_NowSetAdvance(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	if !clock.Now().Equal(base) {
		t.Errorf("Now() = %v, want %v", clock.Now(), base)
	}

	clock.Advance(5 * time.Second)
	if got := clock.Since(base); got != 5*time.Second {
		t.Errorf("Since() = %v, want 5s", got)
	}

	later := base.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", clock.Now(), later)
	}
}

func TestMockClock_Sleep(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	for _, d := range []time.Duration{time.Second, 2 * time.Second} {
		if err := clock.Sleep(context.Background(), d); err != nil {
			t.Fatalf("Sleep(%v) error = %v", d, err)
		}
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("Sleeps() = %v, want [1s 2s]", sleeps)
	}
	if got := clock.Since(base); got != 3*time.Second {
		t.Errorf("clock advanced %v, want 3s", got)
	}

	// The returned slice is a copy.
	sleeps[0] = 0
	if clock.Sleeps()[0] != time.Second {
		t.Error("Sleeps() exposed internal slice")
	}
}

func TestMockClock_SleepCancelled(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clock.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v, want context.Canceled", err)
	}
	if len(clock.Sleeps()) != 0 {
		t.Error("cancelled Sleep should not be recorded")
	}
}

package timectrl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestControllerStepUpdatesNowAndListeners(t *testing.T) {
	c := NewController(time.Second)
	var got []time.Time
	c.AddListener(func(_ context.Context, now time.Time) {
		got = append(got, now)
	})

	at := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c.Step(context.Background(), at)
	c.Step(context.Background(), at.Add(time.Second))

	if len(got) != 2 || !got[1].Equal(at.Add(time.Second)) {
		t.Fatalf("listener saw %v", got)
	}
	if !c.Now().Equal(at.Add(time.Second)) {
		t.Fatalf("Now() = %v", c.Now())
	}
	if c.Ticks() != 2 {
		t.Fatalf("Ticks() = %d, want 2", c.Ticks())
	}
}

func TestControllerStartStopsOnCancel(t *testing.T) {
	c := NewController(2 * time.Millisecond)
	var fired atomic.Int32
	c.AddListener(func(context.Context, time.Time) { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := c.Start(ctx)

	deadline := time.After(2 * time.Second)
	for fired.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("listener fired %d times before deadline", fired.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop")
	}
}

func TestControllerRunReturnsContextError(t *testing.T) {
	c := NewController(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}
}

func TestNewControllerDefaultsTick(t *testing.T) {
	if c := NewController(0); c.Tick != time.Second {
		t.Fatalf("Tick = %v, want 1s", c.Tick)
	}
}

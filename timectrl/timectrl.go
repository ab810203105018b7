// Package timectrl drives the periodic work of the monitor: scene redraws,
// measures table refreshes and the synthetic traffic generator.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock gives components the time of the last tick without depending on
// the concrete controller.
type Clock interface {
	Now() time.Time
}

// Listener is invoked on every tick with the tick time. Listeners run
// sequentially on the controller goroutine.
type Listener func(ctx context.Context, now time.Time)

// Controller fires its listeners every Tick until the context passed to
// Start is cancelled.
type Controller struct {
	mu   sync.RWMutex
	Tick time.Duration

	current   time.Time
	ticks     uint64
	listeners []Listener
}

// NewController constructs a controller firing every tick.
func NewController(tick time.Duration) *Controller {
	if tick <= 0 {
		tick = time.Second
	}
	return &Controller{Tick: tick, current: time.Now()}
}

// Now returns the time of the last tick, or construction time before the
// first one. Implements Clock.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Ticks returns how many ticks have fired.
func (c *Controller) Ticks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// AddListener registers a callback invoked on every tick.
func (c *Controller) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Step fires one tick at now synchronously. Start calls it from its ticker;
// tests call it directly.
func (c *Controller) Step(ctx context.Context, now time.Time) {
	c.mu.Lock()
	c.current = now
	c.ticks++
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, now)
	}
}

// Start runs the controller in a separate goroutine until ctx is done. It
// returns a channel that is closed when the controller finishes.
func (c *Controller) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.Tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.Step(ctx, now)
			}
		}
	}()
	return done
}

// Run is Start for errgroup callers: it blocks until ctx is done and
// returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	<-c.Start(ctx)
	return ctx.Err()
}

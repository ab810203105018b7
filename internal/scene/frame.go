package scene

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/graph"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
)

// Frame is a fully rendered scene, serialisable for remote renderers.
type Frame struct {
	Version  uint64     `json:"version"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Selected int        `json:"selected"`
	Links    []LinkView `json:"links"`
	Motes    []MoteView `json:"motes"`
	Host     *HostView  `json:"host,omitempty"`
	DrawnAt  time.Time  `json:"drawnAt"`
}

// DrawLink implements DrawTarget.
func (f *Frame) DrawLink(l LinkView) { f.Links = append(f.Links, l) }

// DrawMote implements DrawTarget.
func (f *Frame) DrawMote(m MoteView) { f.Motes = append(f.Motes, m) }

// DrawHost implements DrawTarget.
func (f *Frame) DrawHost(h HostView) { f.Host = &h }

// NewFrame renders snap into a fresh frame.
func NewFrame(snap *graph.Snapshot, at time.Time) *Frame {
	f := &Frame{
		Version:  snap.Version,
		Width:    snap.Canvas.Width,
		Height:   snap.Canvas.Height,
		Selected: snap.Selected,
		Links:    []LinkView{},
		Motes:    []MoteView{},
		DrawnAt:  at,
	}
	Render(snap, f)
	return f
}

// Source is the graph a Cache renders from.
type Source interface {
	Snapshot() *graph.Snapshot
	Version() uint64
}

// Cache holds the last rendered frame and redraws it on demand when the
// graph has changed. MarkDirty is safe to call from any goroutine.
type Cache struct {
	src Source
	log logging.Logger
	now func() time.Time

	dirty atomic.Bool

	mu    sync.RWMutex
	frame *Frame
}

// NewCache builds a cache over src. Nothing is rendered until the first
// Redraw or Frame call.
func NewCache(src Source, log logging.Logger) *Cache {
	if log == nil {
		log = logging.Noop()
	}
	c := &Cache{src: src, log: log, now: time.Now}
	c.dirty.Store(true)
	return c
}

// MarkDirty requests a redraw on the next Redraw call.
func (c *Cache) MarkDirty() {
	c.dirty.Store(true)
}

// Redraw renders a new frame if the cache was marked dirty or the graph
// version moved. It reports whether a frame was drawn.
func (c *Cache) Redraw(ctx context.Context) bool {
	dirty := c.dirty.Swap(false)

	c.mu.RLock()
	current := c.frame
	c.mu.RUnlock()
	if !dirty && current != nil && current.Version == c.src.Version() {
		return false
	}

	frame := NewFrame(c.src.Snapshot(), c.now())

	c.mu.Lock()
	c.frame = frame
	c.mu.Unlock()

	c.log.Debug(ctx, "scene redrawn",
		logging.Any("version", frame.Version),
		logging.Int("motes", len(frame.Motes)),
		logging.Int("links", len(frame.Links)),
	)
	return true
}

// Frame returns the latest frame, drawing one first if none exists yet.
func (c *Cache) Frame(ctx context.Context) *Frame {
	c.mu.RLock()
	frame := c.frame
	c.mu.RUnlock()
	if frame != nil {
		return frame
	}
	c.Redraw(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}

// Tick adapts Redraw to a ticker listener.
func (c *Cache) Tick(ctx context.Context, _ time.Time) {
	c.Redraw(ctx)
}

var _ DrawTarget = (*Frame)(nil)

// Package graph coordinates the mote, link and path registries behind a
// single lock so a whole data message is applied atomically and readers
// always observe a coherent snapshot.
package graph

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/davideleoni90/TinysOSClassMonitoring/core"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/kb"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// Re-export registry sentinel errors so callers can depend on graph.*
// instead of kb.* and core.* directly.
var (
	// ErrMoteNotFound indicates a requested mote was never observed.
	ErrMoteNotFound = kb.ErrMoteNotFound
	// ErrPathIndexOutOfRange indicates a selection outside the path table.
	ErrPathIndexOutOfRange = core.ErrPathIndexOutOfRange
	// ErrEmptyPath indicates an attempt to record a path with no motes.
	ErrEmptyPath = core.ErrEmptyPath
)

// Placement kinds reported to the metrics recorder.
const (
	PlacementMote = "mote"
	PlacementHost = "host"
)

// Registry events reported to the metrics recorder.
const (
	EventMoteCreated  = "mote_created"
	EventMoteMoved    = "mote_moved"
	EventPathCreated  = "path_created"
	EventPathUpdated  = "path_updated"
	EventPathSelected = "path_selected"
)

// Config fixes the geometry and identity of the network being drawn.
type Config struct {
	RootMote             int
	Canvas               core.Canvas
	MoteFootprint        model.Footprint
	HostFootprint        model.Footprint
	MaxPlacementAttempts int

	// Rand seeds placement; nil means time-seeded.
	Rand *rand.Rand
	// Colors supplies path colours; nil means uniformly random.
	Colors core.ColorSource
}

// GraphMetricsRecorder receives entity counts, registry events and
// placement fallbacks.
type GraphMetricsRecorder interface {
	SetGraphCounts(motes, links, paths int)
	IncPlacementFallback(kind string)
	ObserveGraphEvent(event string)
}

// GraphStateOption customises GraphState construction.
type GraphStateOption func(*GraphState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m GraphMetricsRecorder) GraphStateOption {
	return func(s *GraphState) {
		s.metrics = m
	}
}

// GraphState owns every registry describing the observed network plus
// the host machine position and the latest reading per producer.
type GraphState struct {
	// mu is the coarse graph-level lock. Take this before touching any
	// registry to keep the lock ordering GraphState -> registry locks.
	mu sync.RWMutex

	cfg    Config
	placer *core.Placer
	motes  *kb.MoteRegistry
	links  *core.LinkRegistry
	paths  *core.PathTable

	host     *model.Position
	readings map[int]model.Reading
	version  uint64

	log     logging.Logger
	metrics GraphMetricsRecorder
}

// NewGraphState builds empty registries for the given configuration.
func NewGraphState(cfg Config, log logging.Logger, opts ...GraphStateOption) *GraphState {
	if log == nil {
		log = logging.Noop()
	}
	placer := core.NewPlacer(cfg.Canvas, cfg.MaxPlacementAttempts, cfg.Rand)
	s := &GraphState{
		cfg:      cfg,
		placer:   placer,
		motes:    kb.NewMoteRegistry(cfg.MoteFootprint, placer),
		links:    core.NewLinkRegistry(),
		paths:    core.NewPathTable(cfg.RootMote, cfg.Colors),
		readings: make(map[int]model.Reading),
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.motes.Subscribe(s.onMoteEvent)
	s.paths.Subscribe(s.onPathEvent)
	s.updateMetricsLocked()
	return s
}

// RootMote returns the ID of the sink mote every path ends at.
func (s *GraphState) RootMote() int {
	return s.cfg.RootMote
}

// Update runs fn while holding the write lock. Every mutation fn performs
// through tx becomes visible to readers at once when Update returns.
func (s *GraphState) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s, ctx: ctx}
	err := fn(tx)
	if tx.dirty {
		s.version++
		s.updateMetricsLocked()
	}
	return err
}

// WithReadLock executes fn while holding the read lock. fn must not call
// other GraphState methods that take the lock.
func (s *GraphState) WithReadLock(fn func() error) error {
	if fn == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// SelectPath makes the path at index the only selected row.
func (s *GraphState) SelectPath(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.paths.Select(index); err != nil {
		return err
	}
	s.version++
	logging.LoggerFromContext(ctx, s.log).Debug(ctx, "path selected",
		logging.String("entity_type", "path"),
		logging.String("operation", "select"),
		logging.Int("index", index),
	)
	return nil
}

// MoveMote places a mote at an explicit position.
func (s *GraphState) MoveMote(ctx context.Context, id int, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.motes.Move(id, pos); err != nil {
		return err
	}
	s.version++
	logging.LoggerFromContext(ctx, s.log).Debug(ctx, "mote moved",
		logging.String("entity_type", "mote"),
		logging.String("operation", "move"),
		logging.Int("mote_id", id),
		logging.Int("x", pos.X),
		logging.Int("y", pos.Y),
	)
	return nil
}

// ApplyDeltas shifts a mote by (dx, dy).
func (s *GraphState) ApplyDeltas(ctx context.Context, id, dx, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.motes.ApplyDeltas(id, dx, dy); err != nil {
		return err
	}
	s.version++
	return nil
}

// HostPosition returns where the host machine is drawn, once placed.
func (s *GraphState) HostPosition() (model.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.host == nil {
		return model.Position{}, false
	}
	return *s.host, true
}

// Reading returns the latest reading recorded for a producer mote.
func (s *GraphState) Reading(moteID int) (model.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[moteID]
	return r, ok
}

// Version increases on every change to the graph. Equal versions imply
// equal snapshots.
func (s *GraphState) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// updateMetricsLocked pushes current entity counts into the metrics
// recorder. Caller must hold s.mu.
func (s *GraphState) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetGraphCounts(s.motes.Len(), s.links.Len(), s.paths.Len())
}

// onMoteEvent and onPathEvent run synchronously inside registry calls made
// under s.mu.
func (s *GraphState) onMoteEvent(ev kb.Event) {
	if s.metrics == nil {
		return
	}
	switch ev.Type {
	case kb.EventMoteCreated:
		s.metrics.ObserveGraphEvent(EventMoteCreated)
	case kb.EventMoteMoved:
		s.metrics.ObserveGraphEvent(EventMoteMoved)
	}
}

func (s *GraphState) onPathEvent(ev core.PathEvent) {
	if s.metrics == nil {
		return
	}
	switch ev.Type {
	case core.EventPathCreated:
		s.metrics.ObserveGraphEvent(EventPathCreated)
	case core.EventPathUpdated:
		s.metrics.ObserveGraphEvent(EventPathUpdated)
	case core.EventPathSelected:
		s.metrics.ObserveGraphEvent(EventPathSelected)
	}
}

func (s *GraphState) maxAttempts() int {
	if s.cfg.MaxPlacementAttempts > 0 {
		return s.cfg.MaxPlacementAttempts
	}
	return core.DefaultMaxPlacementAttempts
}

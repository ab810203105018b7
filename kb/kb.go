package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// ErrMoteNotFound is returned when an operation targets an unknown mote.
var ErrMoteNotFound = errors.New("mote not found")

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventMoteCreated EventType = iota
	EventMoteMoved
)

// Event is emitted to subscribers when a mote is created or moved.
// Fallback is set on creation events whose placement hit the attempt cap
// and may overlap another footprint.
type Event struct {
	Type     EventType
	Mote     model.Mote
	Fallback bool
}

// Placer chooses a position for a new footprint given the boxes already
// occupied. ok is false when no free spot was found.
type Placer interface {
	Place(fp model.Footprint, occupied []model.Rect) (pos model.Position, ok bool)
}

// MoteRegistry is an in-memory, thread-safe store of motes keyed by ID.
// Motes are created lazily on first observation and never deleted.
type MoteRegistry struct {
	mu sync.RWMutex

	footprint model.Footprint
	placer    Placer
	motes     map[int]*model.Mote
	order     []int

	subs    map[int]func(Event)
	nextSub int
}

// NewMoteRegistry constructs an empty registry whose motes all share the
// given footprint.
func NewMoteRegistry(footprint model.Footprint, placer Placer) *MoteRegistry {
	return &MoteRegistry{
		footprint: footprint,
		placer:    placer,
		motes:     make(map[int]*model.Mote),
		subs:      make(map[int]func(Event)),
	}
}

// Footprint returns the footprint shared by every mote.
func (r *MoteRegistry) Footprint() model.Footprint {
	return r.footprint
}

// GetOrCreate returns the mote with the given ID, placing a new one when it
// is absent. isProducer is only applied on creation; later calls never
// change it. The returned pointer is owned by the registry.
func (r *MoteRegistry) GetOrCreate(id int, isProducer bool) (m *model.Mote, created bool) {
	m, created, _ = r.GetOrPlace(id, isProducer)
	return m, created
}

// GetOrPlace is GetOrCreate that also reports fallback: the new mote's
// placement hit the attempt cap and may overlap another footprint. It is
// always false for existing motes.
func (r *MoteRegistry) GetOrPlace(id int, isProducer bool) (m *model.Mote, created, fallback bool) {
	r.mu.Lock()
	if existing, ok := r.motes[id]; ok {
		r.mu.Unlock()
		return existing, false, false
	}

	pos, ok := r.placer.Place(r.footprint, r.boxesLocked())
	m = &model.Mote{ID: id, Position: pos, IsProducer: isProducer}
	r.motes[id] = m
	r.order = append(r.order, id)
	event := Event{Type: EventMoteCreated, Mote: *m, Fallback: !ok}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return m, true, !ok
}

// Get returns the mote with the given ID, or nil if not found.
func (r *MoteRegistry) Get(id int) *model.Mote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.motes[id]
}

// List returns every mote in creation order.
func (r *MoteRegistry) List() []*model.Mote {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*model.Mote, 0, len(r.order))
	for _, id := range r.order {
		res = append(res, r.motes[id])
	}
	return res
}

// Len returns the number of motes.
func (r *MoteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.motes)
}

// Boxes returns the boxes covered by every mote footprint.
func (r *MoteRegistry) Boxes() []model.Rect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boxesLocked()
}

// Move sets a mote's position and notifies subscribers.
func (r *MoteRegistry) Move(id int, pos model.Position) error {
	return r.update(id, func(m *model.Mote) {
		m.Position = pos
	})
}

// ApplyDeltas shifts a mote by (dx, dy) and notifies subscribers.
func (r *MoteRegistry) ApplyDeltas(id, dx, dy int) error {
	return r.update(id, func(m *model.Mote) {
		m.Position = m.Position.Add(dx, dy)
	})
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *MoteRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *MoteRegistry) update(id int, fn func(*model.Mote)) error {
	r.mu.Lock()
	m, ok := r.motes[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrMoteNotFound, id)
	}
	fn(m)
	event := Event{Type: EventMoteMoved, Mote: *m}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

func (r *MoteRegistry) boxesLocked() []model.Rect {
	boxes := make([]model.Rect, 0, len(r.motes))
	for _, id := range r.order {
		boxes = append(boxes, r.footprint.BoxAt(r.motes[id].Position))
	}
	return boxes
}

func (r *MoteRegistry) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	return subs
}

package core

import (
	"sync"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// LinkRegistry owns the directed links observed between motes. Links are
// created on first observation and never deleted.
//
// LinkRegistry is concurrency-safe via an internal RWMutex; pointers it
// hands out are owned by the registry and must be treated as read-only.
type LinkRegistry struct {
	mu sync.RWMutex

	links    map[model.LinkKey]*model.Link
	bySource map[int][]*model.Link
	order    []model.LinkKey
}

// NewLinkRegistry creates an empty registry.
func NewLinkRegistry() *LinkRegistry {
	return &LinkRegistry{
		links:    make(map[model.LinkKey]*model.Link),
		bySource: make(map[int][]*model.Link),
	}
}

// GetOrCreate returns the link source→target, creating it with zero
// quality and an empty label when absent. created reports whether this call
// made the link.
func (r *LinkRegistry) GetOrCreate(source, target int) (link *model.Link, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(model.LinkKey{Source: source, Target: target})
}

// Get returns the link source→target, or nil if it was never observed.
func (r *LinkRegistry) Get(source, target int) *model.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.links[model.LinkKey{Source: source, Target: target}]
}

// SetQuality records the quality and label of source→target, creating the
// link if needed. If target→source already exists it receives the same
// quality and label; it is never created here. mirrored reports whether the
// reverse link was updated.
func (r *LinkRegistry) SetQuality(source, target, quality int, label string) (mirrored bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.LinkKey{Source: source, Target: target}
	link, _ := r.getOrCreateLocked(key)
	link.Quality = quality
	link.Label = label

	if reverse, ok := r.links[key.Reverse()]; ok {
		reverse.Quality = quality
		reverse.Label = label
		return true
	}
	return false
}

// List returns every link in creation order.
func (r *LinkRegistry) List() []*model.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Link, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.links[k])
	}
	return out
}

// LinksFrom returns the links whose source is the given mote, in creation
// order.
func (r *LinkRegistry) LinksFrom(source int) []*model.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*model.Link(nil), r.bySource[source]...)
}

// Len returns the number of links.
func (r *LinkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

func (r *LinkRegistry) getOrCreateLocked(key model.LinkKey) (*model.Link, bool) {
	if link, ok := r.links[key]; ok {
		return link, false
	}
	link := &model.Link{Source: key.Source, Target: key.Target}
	r.links[key] = link
	r.bySource[key.Source] = append(r.bySource[key.Source], link)
	r.order = append(r.order, key)
	return link, true
}

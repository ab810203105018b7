package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

var (
	// ErrEmptyPath is returned when a path with no motes is upserted.
	ErrEmptyPath = errors.New("empty path")
	// ErrPathIndexOutOfRange is returned when selecting a row that does not exist.
	ErrPathIndexOutOfRange = errors.New("path index out of range")
)

// maxColorDraws bounds how many times the colour source is asked for an
// unused colour before the table walks the colour space itself.
const maxColorDraws = 64

// PathEventType indicates what changed in the path table.
type PathEventType int

const (
	EventPathCreated PathEventType = iota
	EventPathUpdated
	EventPathSelected
)

// PathEvent is emitted to subscribers after the table changes.
type PathEvent struct {
	Type  PathEventType
	Index int
	Path  model.Path
}

// PathTable keeps the latest route seen from each origin mote to the root,
// one row per origin in creation order. At most one row is selected; the
// first row ever created is selected automatically.
type PathTable struct {
	mu sync.RWMutex

	root     int
	colors   ColorSource
	paths    []*model.Path
	byOrigin map[int]int
	used     map[uint32]struct{}
	selected int

	subs    map[int]func(PathEvent)
	nextSub int
}

// NewPathTable builds an empty table for routes ending at root. A nil
// colour source is replaced by NewRandomColors(nil).
func NewPathTable(root int, colors ColorSource) *PathTable {
	if colors == nil {
		colors = NewRandomColors(nil)
	}
	return &PathTable{
		root:     root,
		colors:   colors,
		byOrigin: make(map[int]int),
		used:     make(map[uint32]struct{}),
		selected: -1,
		subs:     make(map[int]func(PathEvent)),
	}
}

// Root returns the root mote every stored path ends with.
func (t *PathTable) Root() int {
	return t.root
}

// Upsert records path (producer first, root excluded) as the current route
// of its origin. The stored mote sequence is path followed by the root.
// An existing row keeps its colour and selection; a new row gets a colour
// no other row uses. created reports whether a new row was added.
func (t *PathTable) Upsert(path []int) (created bool, err error) {
	if len(path) == 0 {
		return false, ErrEmptyPath
	}

	motes := make([]int, 0, len(path)+1)
	motes = append(motes, path...)
	motes = append(motes, t.root)
	origin := path[0]

	t.mu.Lock()
	var ev PathEvent
	if idx, ok := t.byOrigin[origin]; ok {
		p := t.paths[idx]
		p.Motes = motes
		p.HopCount = len(path)
		ev = PathEvent{Type: EventPathUpdated, Index: idx, Path: p.Clone()}
	} else {
		p := &model.Path{
			Origin:   origin,
			Motes:    motes,
			HopCount: len(path),
			Color:    t.uniqueColorLocked(),
		}
		idx := len(t.paths)
		if idx == 0 {
			p.Selected = true
			t.selected = 0
		}
		t.paths = append(t.paths, p)
		t.byOrigin[origin] = idx
		t.used[p.Color.Packed()] = struct{}{}
		created = true
		ev = PathEvent{Type: EventPathCreated, Index: idx, Path: p.Clone()}
	}
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
	return created, nil
}

// Select makes row index the only selected row.
func (t *PathTable) Select(index int) error {
	t.mu.Lock()
	if index < 0 || index >= len(t.paths) {
		n := len(t.paths)
		t.mu.Unlock()
		return fmt.Errorf("%w: %d (rows: %d)", ErrPathIndexOutOfRange, index, n)
	}
	if t.selected >= 0 {
		t.paths[t.selected].Selected = false
	}
	t.paths[index].Selected = true
	t.selected = index
	ev := PathEvent{Type: EventPathSelected, Index: index, Path: t.paths[index].Clone()}
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
	return nil
}

// Selected returns a copy of the selected row and its index.
func (t *PathTable) Selected() (path model.Path, index int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.selected < 0 {
		return model.Path{}, -1, false
	}
	return t.paths[t.selected].Clone(), t.selected, true
}

// BelongsToSelected reports the offset of source within the selected path
// when target immediately follows it there.
func (t *PathTable) BelongsToSelected(source, target int) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.selected < 0 {
		return 0, false
	}
	return PathOffset(t.paths[t.selected].Motes, source, target)
}

// Get returns a copy of the row for the given origin.
func (t *PathTable) Get(origin int) (model.Path, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byOrigin[origin]
	if !ok {
		return model.Path{}, false
	}
	return t.paths[idx].Clone(), true
}

// List returns copies of every row in creation order.
func (t *PathTable) List() []model.Path {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Path, 0, len(t.paths))
	for _, p := range t.paths {
		out = append(out, p.Clone())
	}
	return out
}

// Len returns the number of rows.
func (t *PathTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.paths)
}

// Subscribe registers a callback invoked after every table change, outside
// the table lock. It returns an unsubscribe function.
func (t *PathTable) Subscribe(fn func(PathEvent)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// PathOffset returns the first offset i such that motes[i] == source and
// motes[i+1] == target.
func PathOffset(motes []int, source, target int) (int, bool) {
	for i := 0; i+1 < len(motes); i++ {
		if motes[i] == source && motes[i+1] == target {
			return i, true
		}
	}
	return 0, false
}

func (t *PathTable) uniqueColorLocked() model.Color {
	var c model.Color
	for i := 0; i < maxColorDraws; i++ {
		c = t.colors.Next()
		if _, taken := t.used[c.Packed()]; !taken {
			return c
		}
	}
	// The source keeps repeating itself; step through the space from the
	// last draw. Fewer rows than colours exist, so this terminates.
	v := c.Packed()
	for {
		v = (v + 1) & 0xffffff
		if _, taken := t.used[v]; !taken {
			return model.ColorFromPacked(v)
		}
	}
}

func (t *PathTable) subscribersLocked() []func(PathEvent) {
	subs := make([]func(PathEvent), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(PathEvent), ev PathEvent) {
	for _, fn := range subs {
		fn(ev)
	}
}

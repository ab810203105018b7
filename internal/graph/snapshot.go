package graph

import (
	"github.com/davideleoni90/TinysOSClassMonitoring/core"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// Snapshot is a coherent, deep-copied view of the graph. It shares no
// memory with GraphState and may be read without locking.
type Snapshot struct {
	Version       uint64
	RootMote      int
	Canvas        core.Canvas
	MoteFootprint model.Footprint
	HostFootprint model.Footprint

	// Motes, Links and Paths are in creation order.
	Motes []model.Mote
	Links []model.Link
	Paths []model.Path
	// Selected is the index of the selected path, or -1.
	Selected int

	Host       model.Position
	HostPlaced bool

	Readings map[int]model.Reading

	byID map[int]int
}

// Snapshot returns a coherent view of the current graph.
func (s *GraphState) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Version:       s.version,
		RootMote:      s.cfg.RootMote,
		Canvas:        s.cfg.Canvas,
		MoteFootprint: s.cfg.MoteFootprint,
		HostFootprint: s.cfg.HostFootprint,
		Selected:      -1,
		Readings:      make(map[int]model.Reading, len(s.readings)),
	}

	motes := s.motes.List()
	snap.Motes = make([]model.Mote, 0, len(motes))
	snap.byID = make(map[int]int, len(motes))
	for i, m := range motes {
		snap.Motes = append(snap.Motes, *m)
		snap.byID[m.ID] = i
	}

	links := s.links.List()
	snap.Links = make([]model.Link, 0, len(links))
	for _, l := range links {
		snap.Links = append(snap.Links, *l)
	}

	snap.Paths = s.paths.List()
	for i, p := range snap.Paths {
		if p.Selected {
			snap.Selected = i
		}
	}

	if s.host != nil {
		snap.Host = *s.host
		snap.HostPlaced = true
	}
	for id, r := range s.readings {
		snap.Readings[id] = r
	}
	return snap
}

// Mote looks up a mote by ID.
func (s *Snapshot) Mote(id int) (model.Mote, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Mote{}, false
	}
	return s.Motes[i], true
}

// SelectedPath returns the selected path, if any.
func (s *Snapshot) SelectedPath() (model.Path, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Paths) {
		return model.Path{}, false
	}
	return s.Paths[s.Selected], true
}

// BelongsToSelected reports the offset of source within the selected path
// when target immediately follows it there.
func (s *Snapshot) BelongsToSelected(source, target int) (int, bool) {
	p, ok := s.SelectedPath()
	if !ok {
		return 0, false
	}
	return core.PathOffset(p.Motes, source, target)
}

// Package scene projects a graph snapshot onto a drawing surface: every
// mote, the host machine, and only the links on the selected path.
package scene

import (
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/graph"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// MoteView is what a renderer needs to draw one mote.
type MoteView struct {
	ID         int             `json:"id"`
	Position   model.Position  `json:"position"`
	Footprint  model.Footprint `json:"footprint"`
	IsProducer bool            `json:"isProducer"`
	IsRoot     bool            `json:"isRoot"`
}

// LinkView is a link on the selected path. Ordinal is the 1-based position
// of the hop along the path and is drawn at LabelAt.
type LinkView struct {
	Source  int            `json:"source"`
	Target  int            `json:"target"`
	From    model.Position `json:"from"`
	To      model.Position `json:"to"`
	Ordinal int            `json:"ordinal"`
	Color   string         `json:"color"`
	Quality int            `json:"quality"`
	Label   string         `json:"label"`
	LabelAt model.Position `json:"labelAt"`
}

// HostView is the host machine image.
type HostView struct {
	Position  model.Position  `json:"position"`
	Footprint model.Footprint `json:"footprint"`
}

// DrawTarget receives draw calls from Render.
type DrawTarget interface {
	DrawLink(LinkView)
	DrawMote(MoteView)
	DrawHost(HostView)
}

// Render draws snap onto into: links of the selected path first, then
// every mote, then the host if it has been placed. Links whose endpoints
// coincide are skipped.
func Render(snap *graph.Snapshot, into DrawTarget) {
	if snap == nil || into == nil {
		return
	}

	if selected, ok := snap.SelectedPath(); ok {
		color := selected.Color.Hex()
		for _, l := range snap.Links {
			pos, ok := snap.BelongsToSelected(l.Source, l.Target)
			if !ok {
				continue
			}
			from, okFrom := snap.Mote(l.Source)
			to, okTo := snap.Mote(l.Target)
			if !okFrom || !okTo {
				continue
			}
			at, ok := LabelAnchor(from.Position, to.Position)
			if !ok {
				continue
			}
			into.DrawLink(LinkView{
				Source:  l.Source,
				Target:  l.Target,
				From:    from.Position,
				To:      to.Position,
				Ordinal: pos + 1,
				Color:   color,
				Quality: l.Quality,
				Label:   l.Label,
				LabelAt: at,
			})
		}
	}

	for _, m := range snap.Motes {
		into.DrawMote(MoteView{
			ID:         m.ID,
			Position:   m.Position,
			Footprint:  snap.MoteFootprint,
			IsProducer: m.IsProducer,
			IsRoot:     m.ID == snap.RootMote,
		})
	}

	if snap.HostPlaced {
		into.DrawHost(HostView{Position: snap.Host, Footprint: snap.HostFootprint})
	}
}

// LabelAnchor returns where the ordinal of a link from a to b is drawn:
// the midpoint shifted by (+10, +8), then pushed sideways in proportion to
// how horizontal the link is. ok is false for zero-length links.
func LabelAnchor(a, b model.Position) (at model.Position, ok bool) {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx == 0 && dy == 0 {
		return model.Position{}, false
	}
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}

	midX := (a.X+b.X)/2 + 10
	midY := (a.Y+b.Y)/2 + 8
	skew := float64(abs(dx)) / float64(abs(dy)+abs(dx)) * 10

	if dx*dy < 0 {
		midY = int(float64(midY) + skew)
	} else {
		midY = int(float64(midY) - skew)
	}
	midX = int(float64(midX) + skew)
	return model.Position{X: midX, Y: midY}, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package model

// Position is a canvas coordinate in pixels. The origin is the top-left
// corner of the drawing area.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p shifted by (dx, dy).
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Footprint is the pixel size of the image drawn for a mote or the host
// machine. Images are drawn centred on their Position.
type Footprint struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// HalfWidth returns the horizontal distance from the centre to an edge.
func (f Footprint) HalfWidth() int { return f.Width / 2 }

// HalfHeight returns the vertical distance from the centre to an edge.
func (f Footprint) HalfHeight() int { return f.Height / 2 }

// BoxAt returns the axis-aligned box covered by the footprint when it is
// centred on p.
func (f Footprint) BoxAt(p Position) Rect {
	return Rect{
		MinX: p.X - f.HalfWidth(),
		MinY: p.Y - f.HalfHeight(),
		MaxX: p.X - f.HalfWidth() + f.Width,
		MaxY: p.Y - f.HalfHeight() + f.Height,
	}
}

// Rect is a half-open axis-aligned box [MinX, MaxX) x [MinY, MaxY).
type Rect struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.MinX && p.X < r.MaxX && p.Y >= r.MinY && p.Y < r.MaxY
}

// Intersects reports whether the two boxes share any area. Boxes that only
// touch along an edge do not intersect.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX && r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Mote is a sensor node drawn on the canvas. The ID is assigned by the
// network and is unique across the whole session.
//
// IsProducer is fixed when the mote is first observed: true if it was first
// seen as the origin of a data message, false if first seen as a relay or as
// the root.
type Mote struct {
	ID         int      `json:"id"`
	Position   Position `json:"position"`
	IsProducer bool     `json:"isProducer"`
}

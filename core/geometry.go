package core

import "github.com/davideleoni90/TinysOSClassMonitoring/model"

// Canvas is the drawing area motes and the host are placed on, in pixels.
type Canvas struct {
	Width  int
	Height int
}

// Bounds returns the inclusive range of centre positions that keep a
// footprint fully inside the canvas. When the canvas is narrower than the
// footprint along an axis the range collapses to the canvas midpoint.
func (c Canvas) Bounds(fp model.Footprint) (minX, maxX, minY, maxY int) {
	minX, maxX = axisBounds(c.Width, fp.HalfWidth())
	minY, maxY = axisBounds(c.Height, fp.HalfHeight())
	return minX, maxX, minY, maxY
}

// Clamp moves p to the nearest centre position that keeps fp inside the
// canvas.
func (c Canvas) Clamp(p model.Position, fp model.Footprint) model.Position {
	minX, maxX, minY, maxY := c.Bounds(fp)
	return model.Position{
		X: clamp(p.X, minX, maxX),
		Y: clamp(p.Y, minY, maxY),
	}
}

func axisBounds(size, half int) (int, int) {
	lo, hi := half, size-half
	if hi < lo {
		mid := size / 2
		return mid, mid
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// overlapsAny reports whether box intersects any of the occupied boxes.
func overlapsAny(box model.Rect, occupied []model.Rect) bool {
	for _, o := range occupied {
		if box.Intersects(o) {
			return true
		}
	}
	return false
}

package core

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// DefaultMaxPlacementAttempts caps rejection sampling before the placer
// falls back to the last candidate it drew.
const DefaultMaxPlacementAttempts = 1000

// Placer assigns canvas positions by rejection sampling: candidates are
// drawn uniformly from the area that keeps the footprint on the canvas and
// rejected while their box intersects an occupied box.
//
// Placer is safe for concurrent use.
type Placer struct {
	mu          sync.Mutex
	canvas      Canvas
	maxAttempts int
	rng         *rand.Rand
}

// NewPlacer builds a placer for the given canvas. A nil rng is replaced by
// a time-seeded source; tests pass a fixed seed.
func NewPlacer(canvas Canvas, maxAttempts int, rng *rand.Rand) *Placer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPlacementAttempts
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Placer{
		canvas:      canvas,
		maxAttempts: maxAttempts,
		rng:         rng,
	}
}

// Canvas returns the canvas the placer draws from.
func (p *Placer) Canvas() Canvas {
	return p.canvas
}

// Place picks a centre for fp anywhere on the canvas such that its box does
// not intersect any occupied box. ok is false when the attempt cap was hit;
// the returned position is then the last candidate drawn and may overlap.
func (p *Placer) Place(fp model.Footprint, occupied []model.Rect) (pos model.Position, ok bool) {
	minX, maxX, minY, maxY := p.canvas.Bounds(fp)
	return p.sample(minX, maxX, minY, maxY, fp, occupied)
}

// PlaceNear works like Place but draws candidates from a window around
// anchor that spans two footprints on each side, clipped to the canvas.
func (p *Placer) PlaceNear(anchor model.Position, fp model.Footprint, occupied []model.Rect) (pos model.Position, ok bool) {
	minX, maxX, minY, maxY := p.canvas.Bounds(fp)
	nMinX := max(minX, anchor.X-2*fp.Width)
	nMaxX := min(maxX, anchor.X+2*fp.Width)
	nMinY := max(minY, anchor.Y-2*fp.Height)
	nMaxY := min(maxY, anchor.Y+2*fp.Height)
	if nMinX > nMaxX || nMinY > nMaxY {
		return p.sample(minX, maxX, minY, maxY, fp, occupied)
	}
	return p.sample(nMinX, nMaxX, nMinY, nMaxY, fp, occupied)
}

func (p *Placer) sample(minX, maxX, minY, maxY int, fp model.Footprint, occupied []model.Rect) (model.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidate model.Position
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		candidate = model.Position{
			X: minX + p.rng.IntN(maxX-minX+1),
			Y: minY + p.rng.IntN(maxY-minY+1),
		}
		if !overlapsAny(fp.BoxAt(candidate), occupied) {
			return candidate, true
		}
	}
	return candidate, false
}

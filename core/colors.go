package core

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// ColorSource produces candidate path colours. Sources do not need to
// avoid repeats; the path table rejects colours already in use.
type ColorSource interface {
	Next() model.Color
}

// RandomColors draws colours uniformly from the 24-bit RGB space.
type RandomColors struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomColors builds a colour source; a nil rng is time-seeded.
func NewRandomColors(rng *rand.Rand) *RandomColors {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed<<1|1))
	}
	return &RandomColors{rng: rng}
}

// Next returns a random colour.
func (c *RandomColors) Next() model.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ColorFromPacked(c.rng.Uint32() & 0xffffff)
}

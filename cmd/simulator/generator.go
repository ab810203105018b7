package main

import (
	"math/rand/v2"
	"sort"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// generator emits bridge messages for a random collection tree rooted at
// root. Every non-root mote forwards through a parent with a lower index,
// so every route ends at the root.
type generator struct {
	rng     *rand.Rand
	root    int
	motes   []int
	parent  map[int]int
	churn   float64
	maxHops int
}

func newGenerator(rng *rand.Rand, root, motes int, churn float64) *generator {
	g := &generator{
		rng:    rng,
		root:   root,
		parent: make(map[int]int, motes),
		churn:  churn,
	}
	next := root + 1
	for len(g.motes) < motes {
		g.motes = append(g.motes, next)
		next++
	}
	for i, id := range g.motes {
		g.parent[id] = g.pickParent(i)
	}
	g.maxHops = len(g.motes)
	return g
}

// pickParent returns the root or one of the first i motes.
func (g *generator) pickParent(i int) int {
	n := g.rng.IntN(i + 1)
	if n == i {
		return g.root
	}
	return g.motes[n]
}

// route returns the chain from id towards the root, root excluded.
func (g *generator) route(id int) []int {
	path := []int{id}
	for cur := g.parent[id]; cur != g.root && len(path) < g.maxHops; cur = g.parent[cur] {
		path = append(path, cur)
	}
	return path
}

// next returns one message from a random producer. With probability churn
// the producer first re-parents, changing its route.
func (g *generator) next() model.Message {
	i := g.rng.IntN(len(g.motes))
	id := g.motes[i]
	if g.rng.Float64() < g.churn {
		g.parent[id] = g.pickParent(i)
	}

	path := g.route(id)
	quality := make([]int, 0, len(path))
	for range path {
		quality = append(quality, 10+g.rng.IntN(90))
	}
	return model.Message{
		Origin:        id,
		XAcceleration: g.rng.IntN(401) - 200,
		YAcceleration: g.rng.IntN(401) - 200,
		ZAcceleration: 900 + g.rng.IntN(201),
		HopCount:      len(path),
		Path:          path,
		PathQuality:   quality,
	}
}

// producers lists the generated mote ids in ascending order.
func (g *generator) producers() []int {
	out := append([]int(nil), g.motes...)
	sort.Ints(out)
	return out
}

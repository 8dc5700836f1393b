package presence

import "math"

type cellKey struct{ X, Z int64 }

// grid is a uniform bucket index on the x/z plane; cell size equals the
// visibility radius so a neighbourhood query touches at most nine cells.
type grid struct {
	size  float64
	cells map[cellKey]map[string]struct{}
}

func newGrid(size float64) *grid {
	return &grid{size: size, cells: map[cellKey]map[string]struct{}{}}
}

func (g *grid) key(x, z float64) cellKey {
	return cellKey{X: int64(math.Floor(x / g.size)), Z: int64(math.Floor(z / g.size))}
}

func (g *grid) add(k cellKey, id string) {
	c := g.cells[k]
	if c == nil {
		c = map[string]struct{}{}
		g.cells[k] = c
	}
	c[id] = struct{}{}
}

func (g *grid) remove(k cellKey, id string) {
	c := g.cells[k]
	if c == nil {
		return
	}
	delete(c, id)
	if len(c) == 0 {
		delete(g.cells, k)
	}
}

// around calls fn for every id in the 3x3 block centred on k.
func (g *grid) around(k cellKey, fn func(id string)) {
	for dx := int64(-1); dx <= 1; dx++ {
		for dz := int64(-1); dz <= 1; dz++ {
			for id := range g.cells[cellKey{X: k.X + dx, Z: k.Z + dz}] {
				fn(id)
			}
		}
	}
}

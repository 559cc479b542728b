package main

// EntityGrid indexes entities by the cells of their chunk
type EntityGrid struct {
	width, height int
	cells         [][]map[int64]*Entity // [x][y]
}

// NewEntityGrid creates an empty grid of width x height cells
func NewEntityGrid(width, height int) *EntityGrid {
	cells := make([][]map[int64]*Entity, width)
	for x := range cells {
		cells[x] = make([]map[int64]*Entity, height)
		for y := range cells[x] {
			cells[x][y] = make(map[int64]*Entity)
		}
	}
	return &EntityGrid{width: width, height: height, cells: cells}
}

// Width returns the number of columns
func (g *EntityGrid) Width() int { return g.width }

// Height returns the number of rows
func (g *EntityGrid) Height() int { return g.height }

// InBounds reports whether (x, y) is a grid cell
func (g *EntityGrid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// Register inserts e into every in-bounds cell of its chunk. Call it once the
// position is final, never while predicting.
func (g *EntityGrid) Register(e *Entity) {
	if e == nil {
		return
	}
	for _, c := range e.Chunk() {
		if g.InBounds(c.X, c.Y) {
			g.cells[c.X][c.Y][e.ID] = e
		}
	}
}

// Unregister removes e from every cell of its chunk. Missing entries are
// ignored.
func (g *EntityGrid) Unregister(e *Entity) {
	if e == nil {
		return
	}
	for _, c := range e.Chunk() {
		g.RemoveAt(e, c.X, c.Y)
	}
}

// RemoveAt drops e from a single cell
func (g *EntityGrid) RemoveAt(e *Entity, x, y int) {
	if !g.InBounds(x, y) {
		return
	}
	delete(g.cells[x][y], e.ID)
}

// At returns the occupants of (x, y). The map must not be modified.
func (g *EntityGrid) At(x, y int) map[int64]*Entity {
	if !g.InBounds(x, y) {
		return nil
	}
	return g.cells[x][y]
}

// Occupied reports whether any entity sits on (x, y)
func (g *EntityGrid) Occupied(x, y int) bool {
	return len(g.At(x, y)) > 0
}

// Contains reports whether e is indexed at (x, y)
func (g *EntityGrid) Contains(e *Entity, x, y int) bool {
	_, ok := g.At(x, y)[e.ID]
	return ok
}

// Len returns the total number of (cell, entity) entries
func (g *EntityGrid) Len() int {
	n := 0
	for x := range g.cells {
		for y := range g.cells[x] {
			n += len(g.cells[x][y])
		}
	}
	return n
}

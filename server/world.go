package main

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Team is one side of a match
type Team struct {
	Index   int
	Members []int64 // player ids in join order
	Base    *Entity
	Spawns  []Cell
}

// Remove deletes id from the member list by value
func (t *Team) Remove(id int64) bool {
	for i, m := range t.Members {
		if m == id {
			t.Members = append(t.Members[:i], t.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether id is a member
func (t *Team) Has(id int64) bool {
	for _, m := range t.Members {
		if m == id {
			return true
		}
	}
	return false
}

// World owns the tile layer, the entity grid and the team table of one match
type World struct {
	catalog  *Catalog
	ids      *IDAllocator
	data     *MapData
	grid     *EntityGrid
	entities map[int64]*Entity
	teams    []*Team

	intN func(n int) int
}

// NewWorld builds the static world: one entity per tile, then team bases
func NewWorld(c *Catalog, ids *IDAllocator, data *MapData) *World {
	w := &World{
		catalog:  c,
		ids:      ids,
		data:     data,
		grid:     NewEntityGrid(data.Width, data.Height),
		entities: make(map[int64]*Entity),
		teams:    make([]*Team, data.TeamCount),
		intN:     rand.IntN,
	}
	for y, row := range data.Tiles {
		for x, k := range row {
			if k == KindNone {
				continue
			}
			w.AddEntity(NewEntity(c, ids.Next(), k, x, y), true)
		}
	}
	for i := range w.teams {
		t := &Team{Index: i}
		if i < len(data.Teams) {
			t.Spawns = append([]Cell(nil), data.Teams[i].Spawns...)
		}
		w.teams[i] = t
	}
	for i, td := range data.Teams {
		if td.Base != nil && i < len(w.teams) {
			w.AddBase(i, td.Base.X, td.Base.Y)
		}
	}
	return w
}

// Grid returns the occupancy index
func (w *World) Grid() *EntityGrid { return w.grid }

// Data returns the map the world was built from
func (w *World) Data() *MapData { return w.data }

// Teams returns the team table
func (w *World) Teams() []*Team { return w.teams }

// Team returns team i or nil
func (w *World) Team(i int) *Team {
	if i < 0 || i >= len(w.teams) {
		return nil
	}
	return w.teams[i]
}

// Entity looks up a registered entity
func (w *World) Entity(id int64) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// EntityCount returns the size of the entity collection
func (w *World) EntityCount() int { return len(w.entities) }

// AddEntity adds e to the collection and optionally indexes its position
func (w *World) AddEntity(e *Entity, register bool) {
	if register {
		w.grid.Register(e)
	}
	w.entities[e.ID] = e
}

// RemoveEntity drops e from the grid and the collection. Removing a base
// clears its team's base.
func (w *World) RemoveEntity(e *Entity) {
	w.grid.Unregister(e)
	if e.Kind == KindBase {
		if t := w.Team(e.Team); t != nil && t.Base == e {
			t.Base = nil
		}
	}
	delete(w.entities, e.ID)
}

// AddBase places team's base at (x, y), destroying whatever occupies the
// base chunk first.
func (w *World) AddBase(team, x, y int) *Entity {
	base := NewEntity(w.catalog, w.ids.Next(), KindBase, x, y)
	base.Team = team

	var evict []*Entity
	for _, c := range base.Chunk() {
		for _, e := range w.grid.At(c.X, c.Y) {
			evict = append(evict, e)
		}
	}
	for _, e := range evict {
		w.RemoveEntity(e)
	}

	w.AddEntity(base, true)
	if t := w.Team(team); t != nil {
		t.Base = base
	}
	return base
}

// IsPlayerColliding reports whether the probe point (x, y) is blocked for a
// tank. Points are resolved with floor; off-map points are blocked. ignore is
// the probing tank's own id.
func (w *World) IsPlayerColliding(x, y float64, ignore int64) bool {
	cx, cy := int(math.Floor(x)), int(math.Floor(y))
	if !w.grid.InBounds(cx, cy) {
		return true
	}
	for id, e := range w.grid.At(cx, cy) {
		if id == ignore {
			continue
		}
		if w.catalog.Collides(KindTank, e.Kind) {
			return true
		}
	}
	return false
}

// IsValidPlayerMove probes two points on the leading side of tank for the
// given orientation. Offsets are (row, column) pairs taken from the centre of
// the tank's 2x2 chunk, so each probe lands on the row or column the tank
// is about to enter.
func (w *World) IsValidPlayerMove(tank *Entity, o Orientation) bool {
	if tank == nil {
		return false
	}
	row, col := float64(tank.Y+1), float64(tank.X+1)
	free := func(r, c float64) bool { return !w.IsPlayerColliding(c, r, tank.ID) }

	switch o {
	case OrientLeft:
		return free(row+0.5, col-1.5) && free(row-0.5, col-1.5)
	case OrientUp:
		return free(row-1.5, col+0.5) && free(row-1.5, col-0.5)
	case OrientRight:
		return free(row+0.5, col+1.5) && free(row-0.5, col+1.5)
	case OrientDown:
		return free(row+1.5, col+0.5) && free(row+1.5, col-0.5)
	}
	return false
}

// Spawn picks a random spawn cell of team. An empty list is a map error.
func (w *World) Spawn(team int) (Cell, error) {
	t := w.Team(team)
	if t == nil {
		return Cell{}, fmt.Errorf("%w: team %d does not exist", ErrNoSpawn, team)
	}
	if len(t.Spawns) == 0 {
		return Cell{}, fmt.Errorf("%w: team %d has no spawn points", ErrNoSpawn, team)
	}
	return t.Spawns[w.intN(len(t.Spawns))], nil
}

// TileRows returns the tile grid as plain ints for the SENDMAP reply
func (w *World) TileRows() [][]int {
	rows := make([][]int, len(w.data.Tiles))
	for y, row := range w.data.Tiles {
		rows[y] = make([]int, len(row))
		for x, k := range row {
			rows[y][x] = int(k)
		}
	}
	return rows
}

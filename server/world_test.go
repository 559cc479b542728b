package main

import (
	"errors"
	"testing"
)

func newTestWorld(t *testing.T, data *MapData) *World {
	t.Helper()
	c := NewCatalog()
	if err := data.Validate(c); err != nil {
		t.Fatalf("test map invalid: %v", err)
	}
	return NewWorld(c, &IDAllocator{}, data)
}

// placeTank puts a registered tank on (x, y)
func placeTank(w *World, x, y int) *MovableEntity {
	m := NewMovableEntity(w.catalog, w.ids.Next(), KindTank, x, y, DefaultTankSpeed)
	w.AddEntity(m.Base(), true)
	return m
}

func TestNewWorldIndexesTiles(t *testing.T) {
	data := testMap(8, 8)
	data.Tiles[2][3] = KindWall
	data.Tiles[6][6] = KindTrees
	w := newTestWorld(t, data)

	if w.EntityCount() != 2 {
		t.Fatalf("expected 2 tile entities, got %d", w.EntityCount())
	}
	if !w.Grid().Occupied(3, 2) || !w.Grid().Occupied(4, 3) {
		t.Error("wall chunk not indexed")
	}
	if len(w.Teams()) != 2 {
		t.Errorf("expected 2 teams, got %d", len(w.Teams()))
	}
}

func TestValidMoveEmptyGrid(t *testing.T) {
	w := newTestWorld(t, testMap(12, 12))
	tank := placeTank(w, 5, 5)

	for _, o := range []Orientation{OrientLeft, OrientUp, OrientRight, OrientDown} {
		if !w.IsValidPlayerMove(tank.Base(), o) {
			t.Errorf("%s should be free on an empty grid", o)
		}
	}
}

func TestValidMoveProbes(t *testing.T) {
	// tank chunk covers columns 5-6 and rows 5-6; tiles fill a 2x2 chunk too
	tests := []struct {
		name     string
		o        Orientation
		wall     Cell // tile touching the leading side
		diagonal Cell // tile next to a corner, off the path
	}{
		{"left", OrientLeft, Cell{3, 5}, Cell{3, 3}},
		{"up", OrientUp, Cell{5, 3}, Cell{3, 3}},
		{"right", OrientRight, Cell{7, 5}, Cell{7, 3}},
		{"down", OrientDown, Cell{5, 7}, Cell{7, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testMap(12, 12)
			data.Tiles[tt.diagonal.Y][tt.diagonal.X] = KindWall
			w := newTestWorld(t, data)
			tank := placeTank(w, 5, 5)
			if !w.IsValidPlayerMove(tank.Base(), tt.o) {
				t.Fatalf("wall at %v is off the %s path", tt.diagonal, tt.o)
			}

			data = testMap(12, 12)
			data.Tiles[tt.wall.Y][tt.wall.X] = KindWall
			w = newTestWorld(t, data)
			tank = placeTank(w, 5, 5)
			if w.IsValidPlayerMove(tank.Base(), tt.o) {
				t.Errorf("wall at %v should block %s", tt.wall, tt.o)
			}
		})
	}
}

func TestValidMoveOnlyLeadingSide(t *testing.T) {
	data := testMap(12, 12)
	data.Tiles[5][7] = KindWall // right of the tank
	w := newTestWorld(t, data)
	tank := placeTank(w, 5, 5)

	if w.IsValidPlayerMove(tank.Base(), OrientRight) {
		t.Error("wall on the right should block RIGHT")
	}
	for _, o := range []Orientation{OrientLeft, OrientUp, OrientDown} {
		if !w.IsValidPlayerMove(tank.Base(), o) {
			t.Errorf("wall on the right should not block %s", o)
		}
	}
}

func TestValidMoveTileKinds(t *testing.T) {
	tests := []struct {
		kind    Kind
		blocked bool
	}{
		{KindWall, true},
		{KindArmoredWall, true},
		{KindWater, true},
		{KindTrees, false},
		{KindIce, false},
	}
	for _, tt := range tests {
		data := testMap(12, 12)
		data.Tiles[5][3] = tt.kind
		w := newTestWorld(t, data)
		tank := placeTank(w, 5, 5)
		if got := !w.IsValidPlayerMove(tank.Base(), OrientLeft); got != tt.blocked {
			t.Errorf("kind %d: blocked=%v, want %v", tt.kind, got, tt.blocked)
		}
	}
}

func TestValidMoveOtherTank(t *testing.T) {
	w := newTestWorld(t, testMap(12, 12))
	tank := placeTank(w, 5, 5)
	placeTank(w, 3, 6)

	if w.IsValidPlayerMove(tank.Base(), OrientLeft) {
		t.Error("a tank beside the leading edge should block")
	}
	if !w.IsValidPlayerMove(tank.Base(), OrientRight) {
		t.Error("moving away from the other tank should be free")
	}
	if w.IsPlayerColliding(5.5, 5.5, tank.ID) {
		t.Error("own chunk must not block")
	}
	if !w.IsPlayerColliding(5.5, 5.5, 0) {
		t.Error("the tank blocks everyone else")
	}
}

func TestValidMoveOffMap(t *testing.T) {
	w := newTestWorld(t, testMap(12, 12))
	tank := placeTank(w, 0, 0)

	if w.IsValidPlayerMove(tank.Base(), OrientLeft) {
		t.Error("probe left of column 0 should be blocked")
	}
	if w.IsValidPlayerMove(tank.Base(), OrientUp) {
		t.Error("probe above row 0 should be blocked")
	}
	if !w.IsValidPlayerMove(tank.Base(), OrientRight) || !w.IsValidPlayerMove(tank.Base(), OrientDown) {
		t.Error("the corner tank can move into the map")
	}

	edge := placeTank(w, 10, 10)
	if w.IsValidPlayerMove(edge.Base(), OrientRight) || w.IsValidPlayerMove(edge.Base(), OrientDown) {
		t.Error("probes past the last column and row should be blocked")
	}

	if w.IsValidPlayerMove(nil, OrientLeft) {
		t.Error("nil tank can't move")
	}
	if w.IsValidPlayerMove(tank.Base(), Orientation(9)) {
		t.Error("unknown orientation can't move")
	}
}

func TestIsPlayerCollidingFloors(t *testing.T) {
	data := testMap(8, 8)
	data.Tiles[2][2] = KindWall
	w := newTestWorld(t, data)

	if !w.IsPlayerColliding(2.9, 2.1, 0) {
		t.Error("(2.9,2.1) floors into the wall")
	}
	if w.IsPlayerColliding(1.9, 1.9, 0) {
		t.Error("(1.9,1.9) floors to a free cell")
	}
	if !w.IsPlayerColliding(-0.1, 0, 0) {
		t.Error("negative coordinates are off the map")
	}
}

func TestAddBaseEvicts(t *testing.T) {
	data := testMap(10, 10)
	data.Tiles[4][4] = KindWall
	data.Tiles[5][5] = KindWater
	w := newTestWorld(t, data)
	if w.EntityCount() != 2 {
		t.Fatalf("expected 2 tiles, got %d", w.EntityCount())
	}

	base := w.AddBase(0, 4, 4)
	if w.EntityCount() != 1 {
		t.Errorf("expected only the base left, got %d entities", w.EntityCount())
	}
	if w.Team(0).Base != base {
		t.Error("team 0 base not set")
	}
	if base.Team != 0 {
		t.Errorf("base team = %d", base.Team)
	}
	for _, c := range base.Chunk() {
		if len(w.Grid().At(c.X, c.Y)) != 1 {
			t.Errorf("cell %v should only hold the base", c)
		}
	}

	w.RemoveEntity(base)
	if w.Team(0).Base != nil {
		t.Error("removing the base should clear the team base")
	}
}

func TestNewWorldPlacesBases(t *testing.T) {
	data := testMap(10, 10)
	data.Tiles[1][1] = KindWall
	data.Teams[0].Base = &Cell{1, 1}
	w := newTestWorld(t, data)

	if w.Team(0).Base == nil || w.Team(1).Base != nil {
		t.Fatal("only team 0 has a base")
	}
	for _, e := range w.Grid().At(1, 1) {
		if e.Kind != KindBase {
			t.Errorf("base cell holds %d", e.Kind)
		}
	}
}

func TestSpawn(t *testing.T) {
	data := testMap(10, 10)
	data.Teams[0].Spawns = []Cell{{1, 1}, {2, 2}, {3, 3}}
	data.Teams[1].Spawns = nil
	w := newTestWorld(t, data)
	w.intN = func(n int) int { return n - 1 }

	c, err := w.Spawn(0)
	if err != nil || c != (Cell{3, 3}) {
		t.Errorf("Spawn(0) = %v, %v", c, err)
	}
	if _, err := w.Spawn(1); !errors.Is(err, ErrNoSpawn) {
		t.Errorf("empty spawn list: got %v", err)
	}
	if _, err := w.Spawn(5); !errors.Is(err, ErrNoSpawn) {
		t.Errorf("missing team: got %v", err)
	}
}

func TestTileRows(t *testing.T) {
	data := testMap(7, 6)
	data.Tiles[1][2] = KindIce
	w := newTestWorld(t, data)
	rows := w.TileRows()
	if len(rows) != 6 || len(rows[0]) != 7 {
		t.Fatalf("bad shape %v", rows)
	}
	if rows[1][2] != int(KindIce) || rows[0][0] != 0 {
		t.Errorf("rows = %v", rows)
	}
}

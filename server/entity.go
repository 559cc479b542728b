package main

import "sync/atomic"

// CellSize is the number of position units in one grid cell
const CellSize = 16

// Cell is an integer grid coordinate
type Cell struct {
	X, Y int
}

// IDAllocator hands out entity ids. Ids only grow, so an id is never reused
// while something may still reference it.
type IDAllocator struct {
	last atomic.Int64
}

// Next returns a fresh id (first id is 1)
func (a *IDAllocator) Next() int64 {
	return a.last.Add(1)
}

// Entity is the base record shared by every world object. X and Y are the
// logical grid cell.
type Entity struct {
	ID       int64
	Kind     Kind
	X, Y     int
	Layer    Layer
	Animated bool
	Team     int // owning team for bases, -1 otherwise
}

// NewEntity creates an entity with layer/animation taken from the catalog
func NewEntity(c *Catalog, id int64, kind Kind, x, y int) *Entity {
	e := &Entity{ID: id, Kind: kind, X: x, Y: y, Team: -1}
	if s, ok := c.Spec(kind); ok {
		e.Layer = s.Layer
		e.Animated = s.Animated
	}
	return e
}

// State returns the wire tuple [id, kind, x, y]
func (e *Entity) State() Payload {
	return Payload{e.ID, int(e.Kind), e.X, e.Y}
}

// Chunk returns the 2x2 footprint used for spatial indexing
func (e *Entity) Chunk() [4]Cell {
	return [4]Cell{
		{e.X, e.Y},
		{e.X + 1, e.Y},
		{e.X, e.Y + 1},
		{e.X + 1, e.Y + 1},
	}
}

// Cell returns the logical cell
func (e *Entity) Cell() Cell {
	return Cell{e.X, e.Y}
}

// MoveStage names a point in a movable entity's lifecycle
type MoveStage int

const (
	StageOrientation MoveStage = iota + 1
	StageBeforeMove
	StageShift
	StageAfterMove
	StageBeginMove
	StageEndMove
)

func (s MoveStage) String() string {
	switch s {
	case StageOrientation:
		return "orientation"
	case StageBeforeMove:
		return "before-move"
	case StageShift:
		return "shift"
	case StageAfterMove:
		return "after-move"
	case StageBeginMove:
		return "begin-move"
	case StageEndMove:
		return "end-move"
	}
	return "unknown"
}

// MoveObserver receives lifecycle notifications from one movable entity
type MoveObserver interface {
	OnMoveStage(m *MovableEntity, stage MoveStage)
}

// MoveObserverFunc adapts a function to MoveObserver
type MoveObserverFunc func(m *MovableEntity, stage MoveStage)

func (f MoveObserverFunc) OnMoveStage(m *MovableEntity, stage MoveStage) { f(m, stage) }

// Mover is the movement capability. Only movable kinds implement it.
type Mover interface {
	Base() *Entity
	SetOrientation(o Orientation)
	Move(dt float64, predict bool) Cell
	ToggleMovable()
	IsMovable() bool
}

// MovableEntity adds orientation, speed and continuous position to Entity.
// PX/PY are in position units, X/Y (the embedded Entity) stay the logical cell.
type MovableEntity struct {
	Entity
	Orientation Orientation
	Speed       float64 // position units per second
	PX, PY      int

	movable   bool
	observers []MoveObserver
}

var _ Mover = (*MovableEntity)(nil)

// NewMovableEntity creates a movable entity standing still at cell (x, y)
func NewMovableEntity(c *Catalog, id int64, kind Kind, x, y int, speed float64) *MovableEntity {
	return &MovableEntity{
		Entity:      *NewEntity(c, id, kind, x, y),
		Orientation: OrientUp,
		Speed:       speed,
		PX:          x * CellSize,
		PY:          y * CellSize,
	}
}

// Base returns the embedded entity record
func (m *MovableEntity) Base() *Entity {
	return &m.Entity
}

// Observe subscribes obs to this entity's lifecycle stages
func (m *MovableEntity) Observe(obs MoveObserver) {
	m.observers = append(m.observers, obs)
}

func (m *MovableEntity) emit(stage MoveStage) {
	for _, o := range m.observers {
		o.OnMoveStage(m, stage)
	}
}

// Place puts the entity on cell (x, y) without emitting anything. Callers
// that index the entity must unregister it first.
func (m *MovableEntity) Place(x, y int) {
	m.X, m.Y = x, y
	m.PX, m.PY = x*CellSize, y*CellSize
}

// SetOrientation turns the entity, snapping it to the nearest cell first so a
// turn never happens between cells. Turning to the current orientation is a
// no-op.
func (m *MovableEntity) SetOrientation(o Orientation) {
	if m.Orientation == o {
		return
	}
	gx := int(float64(m.PX)/CellSize + 0.5)
	gy := int(float64(m.PY)/CellSize + 0.5)
	m.emit(StageBeforeMove)
	m.Place(gx, gy)
	m.Orientation = o
	m.emit(StageAfterMove)
	m.emit(StageOrientation)
}

// Move advances the entity by speed*dt along its orientation. The logical cell
// steps once the continuous position leaves the band around it. With predict
// set nothing changes and the would-be cell is returned.
func (m *MovableEntity) Move(dt float64, predict bool) Cell {
	gx, gy := m.X, m.Y
	x, y := m.PX, m.PY
	d := int(0.5 + m.Speed*dt)

	switch m.Orientation {
	case OrientLeft:
		x -= d
	case OrientUp:
		y -= d
	case OrientRight:
		x += d
	case OrientDown:
		y += d
	}

	fx, fy := float64(x)/CellSize, float64(y)/CellSize
	if fx <= float64(gx-1) || fx >= float64(gx+1) || fy <= float64(gy-1) || fy >= float64(gy+1) {
		switch m.Orientation {
		case OrientLeft:
			gx--
		case OrientUp:
			gy--
		case OrientRight:
			gx++
		case OrientDown:
			gy++
		}
	}

	if predict {
		return Cell{gx, gy}
	}

	m.emit(StageBeforeMove)
	m.PX, m.PY = x, y
	m.X, m.Y = gx, gy
	m.emit(StageShift)
	m.emit(StageAfterMove)
	return Cell{gx, gy}
}

// ToggleMovable flips the movement flag. The tick only advances movable
// entities.
func (m *MovableEntity) ToggleMovable() {
	m.movable = !m.movable
	if m.movable {
		m.emit(StageBeginMove)
	} else {
		m.emit(StageEndMove)
	}
}

// IsMovable reports the movement flag
func (m *MovableEntity) IsMovable() bool {
	return m.movable
}

// State extends the base tuple with orientation and continuous position
func (m *MovableEntity) State() Payload {
	return append(m.Entity.State(), int(m.Orientation), m.PX, m.PY)
}

package main

import (
	"fmt"

	"go.uber.org/zap"
)

// Roster is the session/team manager of one match: who is in, on which team,
// with which outgoing queue. It is owned by the game loop.
type Roster struct {
	log     *zap.Logger
	catalog *Catalog
	queues  *Queues
	world   *World

	players    map[int64]*Player
	order      []int64 // join order
	population int
	maxPlayers int
	tankSpeed  float64
}

// NewRoster creates an empty roster. Joins are refused until SetWorld.
func NewRoster(log *zap.Logger, c *Catalog, q *Queues, tankSpeed float64) *Roster {
	if tankSpeed <= 0 {
		tankSpeed = DefaultTankSpeed
	}
	return &Roster{
		log:       log,
		catalog:   c,
		queues:    q,
		players:   make(map[int64]*Player),
		tankSpeed: tankSpeed,
	}
}

// SetWorld makes the roster ready: team lists and limits come from the map
func (r *Roster) SetWorld(w *World) {
	r.world = w
	r.maxPlayers = w.Data().MaxPlayers
}

// World returns the match world, nil before the map is ready
func (r *Roster) World() *World { return r.world }

// Ready reports whether the map has been applied
func (r *Roster) Ready() bool { return r.world != nil }

// NewPlayer creates a player bound to this roster's catalog and tank speed
func (r *Roster) NewPlayer(id int64, name string, ch Channel) *Player {
	return NewPlayer(r.catalog, id, name, ch, r.tankSpeed)
}

// AddPlayer puts p on the least-loaded team (lowest index on ties), creates
// its queue and counts it. A player already rostered is left alone.
func (r *Roster) AddPlayer(p *Player) error {
	if r.world == nil {
		return ErrMapNotReady
	}
	if _, ok := r.players[p.ID]; ok {
		return nil
	}
	if r.IsFull() {
		return fmt.Errorf("%w: %d/%d players", ErrGameFull, r.population, r.maxPlayers)
	}

	var team *Team
	for _, t := range r.world.Teams() {
		if team == nil || len(t.Members) < len(team.Members) {
			team = t
		}
	}
	if team == nil {
		return fmt.Errorf("%w: map has no teams", ErrInvalidMap)
	}

	p.Team = team.Index
	team.Members = append(team.Members, p.ID)
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	r.queues.Add(p.ID, p.Channel)
	r.incrementPlayerCount()

	grid := r.world.Grid()
	p.Tank.Observe(MoveObserverFunc(func(m *MovableEntity, stage MoveStage) {
		if !p.placed {
			return
		}
		switch stage {
		case StageBeforeMove:
			grid.Unregister(&m.Entity)
		case StageAfterMove:
			grid.Register(&m.Entity)
		}
	}))
	return nil
}

// RemovePlayer drops every trace of id: roster entry, queue, team
// membership and the tank's footprint. Partial joins and repeated calls are
// fine.
func (r *Roster) RemovePlayer(id int64) (*Player, bool) {
	p, ok := r.players[id]
	r.queues.Remove(id)
	if r.world != nil {
		for _, t := range r.world.Teams() {
			t.Remove(id)
		}
	}
	if !ok {
		return nil, false
	}

	delete(r.players, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if p.placed && r.world != nil {
		r.world.RemoveEntity(&p.Tank.Entity)
		p.placed = false
	}
	r.decrementPlayerCount()
	return p, true
}

// SetPlayerSpawnPosition moves p's tank onto a random spawn of its team. An
// empty spawn list is a map configuration error.
func (r *Roster) SetPlayerSpawnPosition(p *Player) error {
	if r.world == nil {
		return ErrMapNotReady
	}
	cell, err := r.world.Spawn(p.Team)
	if err != nil {
		return fmt.Errorf("spawn player %d: %w", p.ID, err)
	}
	if p.placed {
		r.world.RemoveEntity(&p.Tank.Entity)
	}
	p.Tank.Place(cell.X, cell.Y)
	r.world.AddEntity(&p.Tank.Entity, true)
	p.placed = true
	return nil
}

// Player looks up a rostered player
func (r *Roster) Player(id int64) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Players returns the rostered players in join order
func (r *Roster) Players() []*Player {
	list := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.players[id])
	}
	return list
}

// CheckAllStarted reports whether every rostered player is ready
func (r *Roster) CheckAllStarted() bool {
	for _, p := range r.players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// CheckAllLoaded reports whether every rostered player loaded the map
func (r *Roster) CheckAllLoaded() bool {
	for _, p := range r.players {
		if !p.IsLoad {
			return false
		}
	}
	return true
}

// AllPlaced reports whether every tank stands on a spawn point
func (r *Roster) AllPlaced() bool {
	for _, p := range r.players {
		if !p.placed {
			return false
		}
	}
	return true
}

// PlayersInfo returns the state tuple of every rostered player
func (r *Roster) PlayersInfo() []Payload {
	info := make([]Payload, 0, len(r.order))
	for _, id := range r.order {
		info = append(info, r.players[id].State())
	}
	return info
}

// Population returns the number of rostered players
func (r *Roster) Population() int { return r.population }

// MaxPlayers returns the map's player limit, 0 before the map is ready
func (r *Roster) MaxPlayers() int { return r.maxPlayers }

// IsFull reports whether the match has reached its player limit
func (r *Roster) IsFull() bool {
	return r.world != nil && r.population >= r.maxPlayers
}

func (r *Roster) incrementPlayerCount() {
	r.population++
}

func (r *Roster) decrementPlayerCount() {
	if r.population > 0 {
		r.population--
	}
}

// checkMembership verifies that roster, team lists and queues agree. The
// first mismatch found is returned.
func (r *Roster) checkMembership() error {
	var err error
	fail := func(format string, args ...any) {
		if err == nil {
			err = fmt.Errorf("%w: "+format, append([]any{ErrMembership}, args...)...)
		}
	}

	for id, p := range r.players {
		if !r.queues.Has(id) {
			fail("player %d has no queue", id)
		}
		if r.world == nil {
			continue
		}
		seen := 0
		for _, t := range r.world.Teams() {
			if t.Has(id) {
				seen++
				if t.Index != p.Team {
					fail("player %d listed on team %d, assigned %d", id, t.Index, p.Team)
				}
			}
		}
		if seen != 1 {
			fail("player %d on %d teams", id, seen)
		}
	}
	for _, id := range r.queues.IDs() {
		if _, ok := r.players[id]; !ok {
			fail("queue %d without player", id)
		}
	}
	if r.world != nil {
		for _, t := range r.world.Teams() {
			for _, id := range t.Members {
				if _, ok := r.players[id]; !ok {
					fail("team %d lists unknown player %d", t.Index, id)
				}
			}
		}
	}
	if r.population != len(r.players) {
		fail("population %d, roster %d", r.population, len(r.players))
	}

	return err
}

package main

// DefaultTankSpeed is the tank speed in position units per second
const DefaultTankSpeed = 80.0

// Player is one rostered participant of a match
type Player struct {
	ID      int64
	Name    string
	Team    int
	Tank    *MovableEntity
	IsReady bool
	IsLoad  bool
	Channel Channel

	// placed is set once the tank sits on a spawn point and is indexed
	placed bool
}

// NewPlayer creates a player with an unplaced tank sharing the player's id
func NewPlayer(c *Catalog, id int64, name string, ch Channel, speed float64) *Player {
	return &Player{
		ID:      id,
		Name:    name,
		Team:    -1,
		Tank:    NewMovableEntity(c, id, KindTank, 0, 0, speed),
		Channel: ch,
	}
}

// Placed reports whether the tank has been put on a spawn point
func (p *Player) Placed() bool { return p.placed }

// State returns [id, kind, x, y, orientation, px, py, team, name]
func (p *Player) State() Payload {
	if p.Tank == nil {
		return Payload{p.ID, int(KindTank), 0, 0, int(OrientUp), 0, 0, p.Team, p.Name}
	}
	return append(p.Tank.State(), p.Team, p.Name)
}

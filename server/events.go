package main

// SessionEvent is everything that can happen to a match from outside the
// loop. Transport goroutines build events and hand them to Submit; only the
// loop reads them.
type SessionEvent interface {
	sessionEvent()
}

// Connect attaches a transport channel to the game before the player enters
type Connect struct {
	PlayerID int64
	Channel  Channel
}

// Enter asks the game to admit a connected player. Result, when set, gets
// exactly one value: nil on admission, otherwise ErrGameFull, ErrMapNotReady
// or ErrNoChannel.
type Enter struct {
	PlayerID int64
	Name     string
	Result   chan<- error
}

// Exit removes the player, connected or rostered
type Exit struct {
	PlayerID int64
}

// Ready marks the player ready to start
type Ready struct {
	PlayerID int64
}

// Load confirms the player finished loading the map
type Load struct {
	PlayerID int64
}

// BroadcastRequest relays msg from a player to the rest of the match
type BroadcastRequest struct {
	PlayerID   int64
	Message    Payload
	IgnoreSelf bool
}

// SpawnRequest places the player's tank on a random team spawn point
type SpawnRequest struct {
	PlayerID int64
}

// MoveRequest turns the tank and starts it moving
type MoveRequest struct {
	PlayerID    int64
	Orientation Orientation
}

// EndMoveRequest stops the tank
type EndMoveRequest struct {
	PlayerID int64
}

// ChatRequest broadcasts a chat line
type ChatRequest struct {
	PlayerID int64
	Text     string
}

// MapRequest asks for the tile grid
type MapRequest struct {
	PlayerID int64
}

// mapLoaded carries the outcome of the asynchronous map load into the loop
type mapLoaded struct {
	data *MapData
	err  error
}

func (Connect) sessionEvent()          {}
func (Enter) sessionEvent()            {}
func (Exit) sessionEvent()             {}
func (Ready) sessionEvent()            {}
func (Load) sessionEvent()             {}
func (BroadcastRequest) sessionEvent() {}
func (SpawnRequest) sessionEvent()     {}
func (MoveRequest) sessionEvent()      {}
func (EndMoveRequest) sessionEvent()   {}
func (ChatRequest) sessionEvent()      {}
func (MapRequest) sessionEvent()       {}
func (mapLoaded) sessionEvent()        {}

// eventPlayer returns the player an event is about, 0 for internal events
func eventPlayer(ev SessionEvent) int64 {
	switch e := ev.(type) {
	case Connect:
		return e.PlayerID
	case Enter:
		return e.PlayerID
	case Exit:
		return e.PlayerID
	case Ready:
		return e.PlayerID
	case Load:
		return e.PlayerID
	case BroadcastRequest:
		return e.PlayerID
	case SpawnRequest:
		return e.PlayerID
	case MoveRequest:
		return e.PlayerID
	case EndMoveRequest:
		return e.PlayerID
	case ChatRequest:
		return e.PlayerID
	case MapRequest:
		return e.PlayerID
	}
	return NoPlayer
}

package main

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxChatLen = 120

// Payload is one serialized message: [opcode, fields...]
type Payload []any

// Opcode returns the leading opcode, or -1 when the payload is empty or
// malformed
func (p Payload) Opcode() Opcode {
	if len(p) == 0 {
		return -1
	}
	n, ok := asInt(p[0])
	if !ok {
		return -1
	}
	return Opcode(n)
}

// GAMEFULL reasons
const (
	FullReasonFull        = 0
	FullReasonUnavailable = 1
)

// GameInfo describes a game in the HELLO reply and the HTTP listing
type GameInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Population int    `json:"population"`
	MaxPlayers int    `json:"maxPlayers"`
	Phase      string `json:"phase"`
}

func msgHello(games []GameInfo) Payload {
	list := make([]any, 0, len(games))
	for _, g := range games {
		list = append(list, []any{g.ID, g.Name, g.Population, g.MaxPlayers})
	}
	return Payload{int(MsgHello), list}
}

func msgWelcome(id int64, name string) Payload {
	return Payload{int(MsgWelcome), id, name}
}

func msgPopulation(gameID, count int) Payload {
	return Payload{int(MsgPopulation), gameID, count}
}

func msgJoinGame(p *Player) Payload {
	return append(Payload{int(MsgJoinGame)}, p.State()...)
}

func msgLeftGame(id int64) Payload {
	return Payload{int(MsgLeftGame), id}
}

func msgMove(m *MovableEntity) Payload {
	return append(Payload{int(MsgMove)}, m.State()...)
}

func msgEndMove(m *MovableEntity) Payload {
	return append(Payload{int(MsgEndMove)}, m.State()...)
}

func msgGameStart(gameID int) Payload {
	return Payload{int(MsgGameStart), gameID}
}

func msgGamePlay(gameID int) Payload {
	return Payload{int(MsgGamePlay), gameID}
}

func msgGameData(gameID int, name string, teamCount, maxPlayers int, players []Payload) Payload {
	list := make([]any, len(players))
	for i, p := range players {
		list[i] = []any(p)
	}
	return Payload{int(MsgGameData), gameID, name, teamCount, maxPlayers, list}
}

func msgGameFull(gameID, reason int) Payload {
	return Payload{int(MsgGameFull), gameID, reason}
}

func msgSpawn(state Payload) Payload {
	return append(Payload{int(MsgSpawn)}, state...)
}

func msgChat(id int64, text string) Payload {
	return Payload{int(MsgChat), id, text}
}

func msgSendMap(width, height int, rows [][]int) Payload {
	return Payload{int(MsgSendMap), width, height, rows}
}

// Inbound is a decoded client message
type Inbound struct {
	Op          Opcode
	Name        string
	GameID      int
	Orientation Orientation
	Text        string
}

// ParseInbound validates a client payload
func ParseInbound(p Payload) (Inbound, error) {
	op := p.Opcode()
	in := Inbound{Op: op}
	switch op {
	case MsgHello:
		if len(p) > 1 {
			name, ok := p[1].(string)
			if !ok {
				return in, fmt.Errorf("%w: HELLO name is %T", ErrBadMessage, p[1])
			}
			in.Name = sanitizeName(name)
		}
	case MsgConnect:
		if len(p) < 2 {
			return in, fmt.Errorf("%w: CONNECT without game id", ErrBadMessage)
		}
		id, ok := asInt(p[1])
		if !ok {
			return in, fmt.Errorf("%w: CONNECT game id is %T", ErrBadMessage, p[1])
		}
		in.GameID = int(id)
	case MsgMove:
		if len(p) < 2 {
			return in, fmt.Errorf("%w: MOVE without orientation", ErrBadMessage)
		}
		o, ok := asInt(p[1])
		if !ok || !Orientation(o).Valid() {
			return in, fmt.Errorf("%w: bad orientation %v", ErrBadMessage, p[1])
		}
		in.Orientation = Orientation(o)
	case MsgChat:
		if len(p) < 2 {
			return in, fmt.Errorf("%w: CHAT without text", ErrBadMessage)
		}
		text, ok := p[1].(string)
		if !ok {
			return in, fmt.Errorf("%w: CHAT text is %T", ErrBadMessage, p[1])
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return in, fmt.Errorf("%w: empty CHAT", ErrBadMessage)
		}
		in.Text = truncate(text, maxChatLen)
	case MsgIReady, MsgLoadMap, MsgEndMove, MsgSendMap, MsgSpawn:
	default:
		return in, fmt.Errorf("%w: unexpected opcode %v", ErrBadMessage, p.Opcode())
	}
	return in, nil
}

const maxNameLen = 16

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Tanker"
	}
	return truncate(name, maxNameLen)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// asInt accepts the numeric types produced by the JSON and msgpack decoders
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case float32:
		if n != float32(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

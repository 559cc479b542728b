package main

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	enterTimeout = 5 * time.Second
)

// Client is one websocket connection. It is the Channel of its player: the
// game hands it whole batches, the write pump puts each batch in one frame.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	codec      Codec
	log        *zap.Logger
	send       chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	remoteAddr string
	connID     string

	// read pump only
	playerID   int64
	name       string
	game       *GameServer
	msgCount   int
	msgResetAt time.Time
}

var _ Channel = (*Client)(nil)

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, codec Codec, remoteAddr string) *Client {
	id := uuid.NewString()
	return &Client{
		hub:        hub,
		conn:       conn,
		codec:      codec,
		log:        hub.log.With(zap.String("conn", id), zap.String("addr", remoteAddr)),
		send:       make(chan []byte, max(1, hub.ws.SendBuffer)),
		closed:     make(chan struct{}),
		remoteAddr: remoteAddr,
		connID:     id,
	}
}

// Send encodes batch as one frame and queues it. A full buffer drops the
// frame.
func (c *Client) Send(batch []Payload) error {
	data, err := c.codec.EncodeBatch(batch)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrNoChannel
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.leaveGame()
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	if c.hub.ws.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.hub.ws.MaxMessageSize))
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("ws read error", zap.Error(err))
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if limit := c.hub.ws.MaxMessagesPerSec; limit > 0 && c.msgCount > limit {
			c.log.Warn("rate limit exceeded, disconnecting")
			break
		}

		p, err := c.codec.Decode(message)
		if err == nil {
			err = c.handleMessage(p)
		}
		if err != nil {
			c.log.Debug("message dropped", zap.String("class", string(Classify(err))), zap.Error(err))
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage routes one inbound payload
func (c *Client) handleMessage(p Payload) error {
	in, err := ParseInbound(p)
	if err != nil {
		return err
	}

	switch in.Op {
	case MsgHello:
		return c.handleHello(in)
	case MsgConnect:
		return c.handleConnect(in)
	}

	if c.game == nil {
		return ErrUnknownPlayer
	}
	var ev SessionEvent
	switch in.Op {
	case MsgIReady:
		ev = Ready{PlayerID: c.playerID}
	case MsgLoadMap:
		ev = Load{PlayerID: c.playerID}
	case MsgMove:
		ev = MoveRequest{PlayerID: c.playerID, Orientation: in.Orientation}
	case MsgEndMove:
		ev = EndMoveRequest{PlayerID: c.playerID}
	case MsgChat:
		ev = ChatRequest{PlayerID: c.playerID, Text: in.Text}
	case MsgSendMap:
		ev = MapRequest{PlayerID: c.playerID}
	case MsgSpawn:
		ev = SpawnRequest{PlayerID: c.playerID}
	default:
		return ErrBadMessage
	}
	if !c.game.Submit(ev) {
		c.game = nil
		return ErrGameNotFound
	}
	return nil
}

// handleHello names the connection, hands out the player id and lists games
func (c *Client) handleHello(in Inbound) error {
	c.ensureIdentity(in.Name)
	if in.Name != "" {
		c.name = in.Name
	}
	return c.Send([]Payload{
		msgWelcome(c.playerID, c.name),
		msgHello(c.hub.lobby.List()),
	})
}

func (c *Client) ensureIdentity(name string) {
	if c.playerID == 0 {
		c.playerID = c.hub.lobby.NextPlayerID()
		c.log = c.log.With(zap.Int64("player", c.playerID))
	}
	if c.name == "" {
		c.name = sanitizeName(name)
	}
}

// handleConnect moves the player into game in.GameID, leaving any current
// game first
func (c *Client) handleConnect(in Inbound) error {
	c.ensureIdentity("")
	c.leaveGame()

	g, err := c.hub.lobby.Game(in.GameID)
	if err != nil {
		c.Send([]Payload{msgGameFull(in.GameID, FullReasonUnavailable)})
		return err
	}

	result := make(chan error, 1)
	if !g.Submit(Connect{PlayerID: c.playerID, Channel: c}) ||
		!g.Submit(Enter{PlayerID: c.playerID, Name: c.name, Result: result}) {
		c.Send([]Payload{msgGameFull(in.GameID, FullReasonUnavailable)})
		return ErrGameNotFound
	}

	select {
	case err = <-result:
	case <-g.Done():
		err = ErrGameNotFound
	case <-time.After(enterTimeout):
		err = errors.New("enter timed out")
	}
	if err != nil {
		g.Submit(Exit{PlayerID: c.playerID})
		return err
	}
	c.game = g
	c.log.Info("entered game", zap.Int("game", g.ID()))
	return nil
}

// leaveGame tells the current game the player is gone. It runs on the read
// pump, which owns c.game, and may block while the game's inbox is full.
func (c *Client) leaveGame() {
	if c.game == nil {
		return
	}
	c.game.Submit(Exit{PlayerID: c.playerID})
	c.game = nil
}

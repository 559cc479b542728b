package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTickRate  = 50 // ticks per second
	DefaultInboxSize = 1024
)

// Phase of a match. Transitions only go forward; a match is single-use.
type Phase int32

const (
	PhaseLobby Phase = iota
	PhaseStarting
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseStarting:
		return "starting"
	case PhasePlaying:
		return "playing"
	}
	return "unknown"
}

// GameConfig holds the per-match settings
type GameConfig struct {
	ID              int
	Name            string
	TickRate        int
	TankSpeed       float64
	InboxSize       int
	CheckInvariants bool
}

// GameServer runs one match. Run owns every piece of match state on a single
// goroutine; everything else talks to it through Submit.
type GameServer struct {
	cfg     GameConfig
	catalog *Catalog
	ids     *IDAllocator
	maps    MapSource
	log     *zap.Logger
	journal Recorder
	metrics *Metrics

	inbox    chan SessionEvent
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	// loop-owned
	roster  *Roster
	queues  *Queues
	pending map[int64]Channel // connected, not entered
	data    *MapData
	isStart bool
	isPlay  bool

	// published after every event for other goroutines
	phase      atomic.Int32
	population atomic.Int32
	maxPlayers atomic.Int32
	mapReady   atomic.Bool
	finished   atomic.Bool
}

// NewGameServer creates a match in the lobby phase. The map is loaded when
// Run starts.
func NewGameServer(cfg GameConfig, c *Catalog, ids *IDAllocator, maps MapSource, log *zap.Logger, journal Recorder) *GameServer {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if journal == nil {
		journal = nopRecorder{}
	}
	log = log.Named("game").With(zap.Int("game", cfg.ID))
	m := &Metrics{}
	q := NewQueues(log, m)
	return &GameServer{
		cfg:     cfg,
		catalog: c,
		ids:     ids,
		maps:    maps,
		log:     log,
		journal: journal,
		metrics: m,
		inbox:   make(chan SessionEvent, cfg.InboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		roster:  NewRoster(log, c, q, cfg.TankSpeed),
		queues:  q,
		pending: make(map[int64]Channel),
	}
}

// ID returns the match id
func (g *GameServer) ID() int { return g.cfg.ID }

// Name returns the display name
func (g *GameServer) Name() string { return g.cfg.Name }

// Metrics returns the match counters
func (g *GameServer) Metrics() *Metrics { return g.metrics }

// Run loads the map in the background and drives ticks until ctx is done or
// Stop is called
func (g *GameServer) Run(ctx context.Context) {
	if !g.running.CompareAndSwap(false, true) {
		return
	}
	defer close(g.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.loadMap(ctx)

	interval := time.Second / time.Duration(g.cfg.TickRate)
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.log.Info("game loop started", zap.String("name", g.cfg.Name), zap.Int("tick_rate", g.cfg.TickRate))
	for {
		select {
		case <-ticker.C:
			start := time.Now()
			g.tick(dt)
			g.metrics.AddTick(time.Since(start), interval)
		case <-ctx.Done():
			g.log.Info("game loop stopped", zap.Error(ctx.Err()))
			return
		case <-g.quit:
			g.log.Info("game loop stopped")
			return
		}
	}
}

// Stop ends the loop. Safe to call more than once.
func (g *GameServer) Stop() {
	g.stopOnce.Do(func() { close(g.quit) })
}

// Done is closed once Run has returned
func (g *GameServer) Done() <-chan struct{} { return g.done }

// Submit hands ev to the loop. It blocks while the inbox is full and returns
// false once the match is stopped.
func (g *GameServer) Submit(ev SessionEvent) bool {
	select {
	case <-g.quit:
		return false
	default:
	}
	select {
	case g.inbox <- ev:
		g.metrics.IncEvent()
		return true
	case <-g.quit:
		g.metrics.IncEventDropped()
		return false
	case <-g.done:
		g.metrics.IncEventDropped()
		return false
	}
}

// Phase returns the published phase
func (g *GameServer) Phase() Phase { return Phase(g.phase.Load()) }

// Population returns the published player count
func (g *GameServer) Population() int { return int(g.population.Load()) }

// MapReady reports whether the map has been applied
func (g *GameServer) MapReady() bool { return g.mapReady.Load() }

// Finished reports a match that started and has since emptied
func (g *GameServer) Finished() bool { return g.finished.Load() }

// Info describes the match for listings
func (g *GameServer) Info() GameInfo {
	return GameInfo{
		ID:         g.cfg.ID,
		Name:       g.cfg.Name,
		Population: g.Population(),
		MaxPlayers: int(g.maxPlayers.Load()),
		Phase:      g.Phase().String(),
	}
}

func (g *GameServer) loadMap(ctx context.Context) {
	data, err := g.maps.Load(ctx)
	if ctx.Err() != nil {
		return
	}
	g.Submit(mapLoaded{data: data, err: err})
}

// tick is one pass of the loop: apply queued events, advance tanks once the
// match is playing, flush every queue.
func (g *GameServer) tick(dt float64) {
	for n := len(g.inbox); n > 0; n-- {
		g.dispatch(<-g.inbox)
	}
	if g.isPlay {
		g.advance(dt)
	}
	g.queues.Process()
}

func (g *GameServer) dispatch(ev SessionEvent) {
	switch e := ev.(type) {
	case mapLoaded:
		g.onMapLoaded(e)
	case Connect:
		g.onConnect(e)
	case Enter:
		g.onEnter(e)
	case Exit:
		g.onExit(e)
	case Ready:
		g.onReady(e)
	case Load:
		g.onLoad(e)
	case BroadcastRequest:
		g.onBroadcast(e)
	case SpawnRequest:
		g.onSpawn(e)
	case MoveRequest:
		g.onMove(e)
	case EndMoveRequest:
		g.onEndMove(e)
	case ChatRequest:
		g.onChat(e)
	case MapRequest:
		g.onMapRequest(e)
	default:
		g.log.Warn("unknown session event", zap.Any("event", ev))
	}
	if g.cfg.CheckInvariants {
		if err := g.roster.checkMembership(); err != nil {
			g.log.DPanic("membership check failed",
				zap.Int64("player", eventPlayer(ev)),
				zap.String("event", fmt.Sprintf("%T", ev)),
				zap.String("class", string(ClassInvariant)),
				zap.Error(err))
		}
	}
	g.publish()
}

func (g *GameServer) publish() {
	phase := PhaseLobby
	if g.isPlay {
		phase = PhasePlaying
	} else if g.isStart {
		phase = PhaseStarting
	}
	g.phase.Store(int32(phase))
	g.population.Store(int32(g.roster.Population()))
	g.maxPlayers.Store(int32(g.roster.MaxPlayers()))
	g.mapReady.Store(g.roster.Ready())
	if g.isStart && g.roster.Population() == 0 {
		g.finished.Store(true)
	}
}

func (g *GameServer) onMapLoaded(e mapLoaded) {
	if g.roster.Ready() {
		return
	}
	err := e.err
	if err == nil && e.data != nil {
		err = e.data.Validate(g.catalog)
	}
	if err == nil && e.data == nil {
		err = ErrInvalidMap
	}
	if err != nil {
		g.log.Error("map load failed, match cannot start",
			zap.String("class", string(Classify(err))),
			zap.Error(err))
		return
	}

	g.data = e.data
	g.roster.SetWorld(NewWorld(g.catalog, g.ids, e.data))
	g.log.Info("map ready",
		zap.String("map", e.data.Name),
		zap.Int("width", e.data.Width),
		zap.Int("height", e.data.Height),
		zap.Int("teams", e.data.TeamCount),
		zap.Int("min_players", e.data.MinPlayers),
		zap.Int("max_players", e.data.MaxPlayers))
	g.checkGates()
}

func (g *GameServer) onConnect(e Connect) {
	if e.Channel == nil {
		g.log.Warn("connect without channel", zap.Int64("player", e.PlayerID), zap.Error(ErrNoChannel))
		return
	}
	g.pending[e.PlayerID] = e.Channel
	g.sendDirect(e.PlayerID, e.Channel, msgPopulation(g.cfg.ID, g.roster.Population()))
}

func (g *GameServer) onEnter(e Enter) {
	err := g.enter(e)
	if e.Result != nil {
		e.Result <- err
	}
}

func (g *GameServer) enter(e Enter) error {
	if p, ok := g.roster.Player(e.PlayerID); ok {
		g.log.Debug("player already entered", zap.Int64("player", p.ID))
		return nil
	}
	ch, ok := g.pending[e.PlayerID]
	if !ok {
		g.log.Warn("enter without connect",
			zap.Int64("player", e.PlayerID),
			zap.String("class", string(ClassAnomaly)))
		return ErrNoChannel
	}

	var err error
	if g.isStart {
		err = ErrMatchStarted
	} else {
		err = g.roster.AddPlayer(g.roster.NewPlayer(e.PlayerID, e.Name, ch))
	}
	if err != nil {
		reason := FullReasonUnavailable
		if errors.Is(err, ErrGameFull) {
			reason = FullReasonFull
		}
		g.sendDirect(e.PlayerID, ch, msgGameFull(g.cfg.ID, reason))
		g.log.Info("join refused",
			zap.Int64("player", e.PlayerID),
			zap.String("class", string(Classify(err))),
			zap.Error(err))
		return err
	}
	delete(g.pending, e.PlayerID)

	p, _ := g.roster.Player(e.PlayerID)
	if err := g.roster.SetPlayerSpawnPosition(p); err != nil {
		g.log.Error("cannot place player",
			zap.Int64("player", p.ID),
			zap.Int("team", p.Team),
			zap.String("class", string(Classify(err))),
			zap.Error(err))
	}

	g.log.Info("player joined",
		zap.Int64("player", p.ID),
		zap.String("name", p.Name),
		zap.Int("team", p.Team),
		zap.Int("population", g.roster.Population()))

	g.queues.PushBroadcast(msgJoinGame(p), p.ID)
	g.queues.PushBroadcast(msgPopulation(g.cfg.ID, g.roster.Population()), NoPlayer)
	g.queues.PushToPlayer(p.ID, g.gameData())
	g.journal.Record(JournalEvent{Type: EvtPlayerJoin, GameID: g.cfg.ID, PlayerID: p.ID, Data: p.Name})
	return nil
}

func (g *GameServer) onExit(e Exit) {
	delete(g.pending, e.PlayerID)
	p, ok := g.roster.RemovePlayer(e.PlayerID)
	if !ok {
		return
	}
	g.log.Info("player left",
		zap.Int64("player", p.ID),
		zap.Int("population", g.roster.Population()))

	g.queues.PushBroadcast(msgLeftGame(p.ID), NoPlayer)
	g.queues.PushBroadcast(msgPopulation(g.cfg.ID, g.roster.Population()), NoPlayer)
	g.journal.Record(JournalEvent{Type: EvtPlayerLeave, GameID: g.cfg.ID, PlayerID: p.ID})
	g.checkGates()
}

func (g *GameServer) onReady(e Ready) {
	p, ok := g.player(e.PlayerID, "ready")
	if !ok {
		return
	}
	p.IsReady = true
	g.checkGates()
}

func (g *GameServer) onLoad(e Load) {
	p, ok := g.player(e.PlayerID, "load")
	if !ok {
		return
	}
	p.IsLoad = true
	g.checkGates()
}

// checkGates fires LOBBY->STARTING and STARTING->PLAYING, each at most once
func (g *GameServer) checkGates() {
	if !g.roster.Ready() {
		return
	}
	pop := g.roster.Population()
	if !g.isStart && pop > 0 && pop >= g.data.MinPlayers && g.roster.CheckAllStarted() && g.roster.AllPlaced() {
		g.isStart = true
		g.queues.PushBroadcast(msgGameStart(g.cfg.ID), NoPlayer)
		g.journal.Record(JournalEvent{Type: EvtGameStart, GameID: g.cfg.ID, Data: g.data.Name})
		g.log.Info("match starting", zap.Int("population", pop))
	}
	if g.isStart && !g.isPlay && pop > 0 && g.roster.CheckAllLoaded() {
		g.isPlay = true
		g.queues.PushBroadcast(msgGamePlay(g.cfg.ID), NoPlayer)
		g.journal.Record(JournalEvent{Type: EvtGamePlay, GameID: g.cfg.ID})
		g.log.Info("match playing", zap.Int("population", pop))
	}
}

func (g *GameServer) onBroadcast(e BroadcastRequest) {
	if _, ok := g.player(e.PlayerID, "broadcast"); !ok {
		return
	}
	ignored := NoPlayer
	if e.IgnoreSelf {
		ignored = e.PlayerID
	}
	g.queues.PushBroadcast(e.Message, ignored)
}

func (g *GameServer) onSpawn(e SpawnRequest) {
	p, ok := g.player(e.PlayerID, "spawn")
	if !ok {
		return
	}
	if p.Tank.IsMovable() {
		p.Tank.ToggleMovable()
	}
	if err := g.roster.SetPlayerSpawnPosition(p); err != nil {
		g.log.Error("spawn failed",
			zap.Int64("player", p.ID),
			zap.String("class", string(Classify(err))),
			zap.Error(err))
		return
	}
	g.queues.PushBroadcast(msgSpawn(p.State()), NoPlayer)
}

func (g *GameServer) onMove(e MoveRequest) {
	p, ok := g.player(e.PlayerID, "move")
	if !ok {
		return
	}
	if !g.isPlay || !p.Placed() {
		g.log.Debug("move ignored", zap.Int64("player", p.ID), zap.Stringer("phase", g.Phase()))
		return
	}
	p.Tank.SetOrientation(e.Orientation)
	if !p.Tank.IsMovable() {
		p.Tank.ToggleMovable()
	}
	g.queues.PushBroadcast(msgMove(p.Tank), p.ID)
}

func (g *GameServer) onEndMove(e EndMoveRequest) {
	p, ok := g.player(e.PlayerID, "endmove")
	if !ok {
		return
	}
	if !p.Tank.IsMovable() {
		return
	}
	p.Tank.ToggleMovable()
	g.queues.PushBroadcast(msgEndMove(p.Tank), p.ID)
}

func (g *GameServer) onChat(e ChatRequest) {
	g.onBroadcast(BroadcastRequest{PlayerID: e.PlayerID, Message: msgChat(e.PlayerID, e.Text)})
}

func (g *GameServer) onMapRequest(e MapRequest) {
	w := g.roster.World()
	if w == nil {
		g.log.Debug("map requested before ready", zap.Int64("player", e.PlayerID))
		return
	}
	msg := msgSendMap(g.data.Width, g.data.Height, w.TileRows())
	if g.queues.Has(e.PlayerID) {
		g.queues.PushToPlayer(e.PlayerID, msg)
		return
	}
	if ch, ok := g.pending[e.PlayerID]; ok {
		g.sendDirect(e.PlayerID, ch, msg)
		return
	}
	g.player(e.PlayerID, "sendmap")
}

// advance moves every moving tank one step. A step into a blocked cell stops
// the tank instead.
func (g *GameServer) advance(dt float64) {
	w := g.roster.World()
	for _, p := range g.roster.Players() {
		tank := p.Tank
		if !p.Placed() || !tank.IsMovable() {
			continue
		}
		from := tank.Cell()
		if next := tank.Move(dt, true); next != from && !w.IsValidPlayerMove(&tank.Entity, tank.Orientation) {
			tank.ToggleMovable()
			g.queues.PushBroadcast(msgEndMove(tank), NoPlayer)
			g.metrics.IncBlockedMove()
			continue
		}
		tank.Move(dt, false)
		if tank.Cell() != from {
			g.queues.PushBroadcast(msgMove(tank), p.ID)
			g.metrics.IncMove()
		}
	}
}

func (g *GameServer) gameData() Payload {
	return msgGameData(g.cfg.ID, g.cfg.Name, g.data.TeamCount, g.data.MaxPlayers, g.roster.PlayersInfo())
}

// player resolves a rostered player; unknown ids are a protocol anomaly
func (g *GameServer) player(id int64, op string) (*Player, bool) {
	p, ok := g.roster.Player(id)
	if !ok {
		g.log.Warn("event for unknown player",
			zap.Int64("player", id),
			zap.String("op", op),
			zap.String("class", string(ClassAnomaly)),
			zap.Error(ErrUnknownPlayer))
		g.metrics.IncUnknownPlayer()
	}
	return p, ok
}

// sendDirect answers a connection that has no queue yet
func (g *GameServer) sendDirect(id int64, ch Channel, msg Payload) {
	if err := ch.Send([]Payload{msg}); err != nil {
		g.log.Warn("direct send failed",
			zap.Int64("player", id),
			zap.String("class", string(Classify(err))),
			zap.Error(err))
		g.metrics.IncSendFailed()
	}
}

package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const recycleInterval = time.Second

// GameEntry is one configured match slot
type GameEntry struct {
	ID   int    `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Map  string `mapstructure:"map"`
}

// MapSourceFunc builds the map source for a slot
type MapSourceFunc func(entry GameEntry) MapSource

// Lobby owns every match slot of the process. A match that started and then
// emptied is replaced by a fresh instance with the same id, name and map.
type Lobby struct {
	log      *zap.Logger
	catalog  *Catalog
	ids      *IDAllocator
	journal  Recorder
	template GameConfig
	source   MapSourceFunc

	mu      sync.RWMutex
	entries map[int]GameEntry
	games   map[int]*GameServer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLobby creates the lobby. Games are created by Start.
func NewLobby(log *zap.Logger, c *Catalog, entries []GameEntry, template GameConfig, source MapSourceFunc, journal Recorder) (*Lobby, error) {
	if journal == nil {
		journal = nopRecorder{}
	}
	l := &Lobby{
		log:      log.Named("lobby"),
		catalog:  c,
		ids:      &IDAllocator{},
		journal:  journal,
		template: template,
		source:   source,
		entries:  make(map[int]GameEntry, len(entries)),
		games:    make(map[int]*GameServer, len(entries)),
	}
	for _, e := range entries {
		if _, dup := l.entries[e.ID]; dup {
			return nil, fmt.Errorf("duplicate game id %d", e.ID)
		}
		l.entries[e.ID] = e
	}
	return l, nil
}

// Start launches every configured game and the recycler
func (l *Lobby) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.ctx, l.cancel = ctx, cancel
	for id, e := range l.entries {
		l.games[id] = l.launch(e)
	}
	l.mu.Unlock()

	l.wg.Add(1)
	go l.recycler(ctx)
}

// launch must be called with mu held
func (l *Lobby) launch(e GameEntry) *GameServer {
	cfg := l.template
	cfg.ID = e.ID
	cfg.Name = e.Name
	g := NewGameServer(cfg, l.catalog, l.ids, l.source(e), l.log, l.journal)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		g.Run(l.ctx)
	}()
	return g
}

// NextPlayerID allocates a player id from the id space shared by all games
func (l *Lobby) NextPlayerID() int64 {
	return l.ids.Next()
}

// Game returns the current instance for id
func (l *Lobby) Game(id int) (*GameServer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	return g, nil
}

// List returns every game ordered by id
func (l *Lobby) List() []GameInfo {
	l.mu.RLock()
	list := make([]GameInfo, 0, len(l.games))
	for _, g := range l.games {
		list = append(list, g.Info())
	}
	l.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Recycle replaces game id with a fresh instance
func (l *Lobby) Recycle(id int) error {
	l.mu.Lock()
	old, ok := l.games[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	l.games[id] = l.launch(l.entries[id])
	l.mu.Unlock()

	old.Stop()
	l.journal.Record(JournalEvent{Type: EvtGameRecycled, GameID: id})
	l.log.Info("game recycled", zap.Int("game", id))
	return nil
}

func (l *Lobby) recycler(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(recycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range l.finished() {
				if err := l.Recycle(id); err != nil {
					l.log.Warn("recycle failed", zap.Int("game", id), zap.Error(err))
				}
			}
		}
	}
}

func (l *Lobby) finished() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var ids []int
	for id, g := range l.games {
		if g.Finished() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stop ends every game and the recycler and waits for them to exit
func (l *Lobby) Stop() {
	l.mu.RLock()
	if l.cancel != nil {
		l.cancel()
	}
	for _, g := range l.games {
		g.Stop()
	}
	l.mu.RUnlock()
	l.wg.Wait()
}

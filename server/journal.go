package main

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Journal event types
const (
	EvtGameStart    = "game_start"
	EvtGamePlay     = "game_play"
	EvtPlayerJoin   = "player_join"
	EvtPlayerLeave  = "player_leave"
	EvtGameRecycled = "game_recycled"
)

const (
	journalBuffer     = 1024
	journalBatchSize  = 50
	journalFlushEvery = 5 * time.Second
)

// JournalEvent is one audit row. The journal is never read back into match
// state.
type JournalEvent struct {
	Type     string    `json:"type"`
	GameID   int       `json:"gameId"`
	PlayerID int64     `json:"playerId,omitempty"`
	Data     string    `json:"data,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder accepts journal events without blocking the caller
type Recorder interface {
	Record(evt JournalEvent)
}

type nopRecorder struct{}

func (nopRecorder) Record(JournalEvent) {}

// Journal batches events and writes them to SQLite from a background
// goroutine
type Journal struct {
	db     *DB
	log    *zap.Logger
	events chan JournalEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewJournal creates and starts the writer
func NewJournal(db *DB, log *zap.Logger) *Journal {
	j := &Journal{
		db:     db,
		log:    log.Named("journal"),
		events: make(chan JournalEvent, journalBuffer),
		stop:   make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writer()
	return j
}

// Record enqueues evt. A full buffer drops the event rather than stalling a
// game loop.
func (j *Journal) Record(evt JournalEvent) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	select {
	case <-j.stop:
		return
	default:
	}
	select {
	case j.events <- evt:
	default:
		j.log.Warn("journal buffer full, event dropped", zap.String("type", evt.Type), zap.Int("game", evt.GameID))
	}
}

// Stop flushes what is buffered and ends the writer
func (j *Journal) Stop() {
	j.once.Do(func() { close(j.stop) })
	j.wg.Wait()
}

func (j *Journal) writer() {
	defer j.wg.Done()

	batch := make([]JournalEvent, 0, journalBatchSize)
	ticker := time.NewTicker(journalFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-j.events:
			batch = append(batch, evt)
			if len(batch) >= journalBatchSize {
				batch = j.flush(batch)
			}
		case <-ticker.C:
			batch = j.flush(batch)
		case <-j.stop:
			for {
				select {
				case evt := <-j.events:
					batch = append(batch, evt)
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

func (j *Journal) flush(batch []JournalEvent) []JournalEvent {
	if len(batch) == 0 || j.db == nil {
		return batch[:0]
	}
	if err := j.db.InsertEvents(batch); err != nil {
		j.log.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
	}
	return batch[:0]
}

package main

import (
	"sync/atomic"
	"time"
)

// Metrics counts what a match loop does. All methods are safe on a nil
// receiver and from any goroutine.
type Metrics struct {
	ticks         atomic.Int64
	lateTicks     atomic.Int64
	totalTickNs   atomic.Int64
	events        atomic.Int64
	eventsDropped atomic.Int64
	queued        atomic.Int64
	flushed       atomic.Int64
	sendFailed    atomic.Int64
	unknownPlayer atomic.Int64
	moves         atomic.Int64
	blockedMoves  atomic.Int64
}

func (m *Metrics) AddTick(d, budget time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Add(1)
	m.totalTickNs.Add(d.Nanoseconds())
	if d > budget {
		m.lateTicks.Add(1)
	}
}

func (m *Metrics) IncEvent() {
	if m != nil {
		m.events.Add(1)
	}
}

func (m *Metrics) IncEventDropped() {
	if m != nil {
		m.eventsDropped.Add(1)
	}
}

func (m *Metrics) IncQueued(n int) {
	if m != nil {
		m.queued.Add(int64(n))
	}
}

func (m *Metrics) IncFlushed(n int) {
	if m != nil {
		m.flushed.Add(int64(n))
	}
}

func (m *Metrics) IncSendFailed() {
	if m != nil {
		m.sendFailed.Add(1)
	}
}

func (m *Metrics) IncUnknownPlayer() {
	if m != nil {
		m.unknownPlayer.Add(1)
	}
}

func (m *Metrics) IncMove() {
	if m != nil {
		m.moves.Add(1)
	}
}

func (m *Metrics) IncBlockedMove() {
	if m != nil {
		m.blockedMoves.Add(1)
	}
}

// SendFailed returns the number of failed flushes
func (m *Metrics) SendFailed() int64 {
	if m == nil {
		return 0
	}
	return m.sendFailed.Load()
}

// Snapshot returns a read-only copy for the admin API
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	ticks := m.ticks.Load()
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(m.totalTickNs.Load()) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":       ticks,
		"late_ticks":       m.lateTicks.Load(),
		"avg_tick_ms":      avgMs,
		"events":           m.events.Load(),
		"events_dropped":   m.eventsDropped.Load(),
		"messages_queued":  m.queued.Load(),
		"messages_flushed": m.flushed.Load(),
		"send_failed":      m.sendFailed.Load(),
		"unknown_player":   m.unknownPlayer.Load(),
		"moves":            m.moves.Load(),
		"blocked_moves":    m.blockedMoves.Load(),
	}
}

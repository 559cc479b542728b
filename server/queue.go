package main

import (
	"go.uber.org/zap"
)

// NoPlayer is the zero player id; broadcasting with it excludes nobody
const NoPlayer int64 = 0

// Channel is the per-player transport seen by the game. Send must not block
// the loop for long.
type Channel interface {
	Send(batch []Payload) error
}

// Queues holds one outgoing buffer per rostered player and flushes them once
// per tick
type Queues struct {
	log     *zap.Logger
	metrics *Metrics

	order    []int64 // insertion order, flush order
	pending  map[int64][]Payload
	channels map[int64]Channel
}

// NewQueues creates an empty router
func NewQueues(log *zap.Logger, m *Metrics) *Queues {
	return &Queues{
		log:      log,
		metrics:  m,
		pending:  make(map[int64][]Payload),
		channels: make(map[int64]Channel),
	}
}

// Add creates an empty queue for id. Adding twice keeps the existing queue
// and replaces the channel.
func (q *Queues) Add(id int64, ch Channel) {
	if _, ok := q.pending[id]; !ok {
		q.order = append(q.order, id)
		q.pending[id] = nil
	}
	q.channels[id] = ch
}

// Remove drops the queue and channel of id
func (q *Queues) Remove(id int64) {
	if _, ok := q.pending[id]; !ok {
		delete(q.channels, id)
		return
	}
	delete(q.pending, id)
	delete(q.channels, id)
	for i, o := range q.order {
		if o == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Has reports whether id has a queue
func (q *Queues) Has(id int64) bool {
	_, ok := q.pending[id]
	return ok
}

// IDs returns the queued player ids in insertion order
func (q *Queues) IDs() []int64 {
	return append([]int64(nil), q.order...)
}

// Pending returns the messages waiting for id
func (q *Queues) Pending(id int64) []Payload {
	return q.pending[id]
}

// PushToPlayer appends msg to id's queue. Unknown ids are a protocol anomaly.
func (q *Queues) PushToPlayer(id int64, msg Payload) {
	if _, ok := q.pending[id]; !ok {
		q.log.Warn("push to unknown player",
			zap.Int64("player", id),
			zap.Int("opcode", int(msg.Opcode())),
			zap.String("class", string(ClassAnomaly)))
		q.metrics.IncUnknownPlayer()
		return
	}
	q.pending[id] = append(q.pending[id], msg)
	q.metrics.IncQueued(1)
}

// PushBroadcast appends msg to every queue except ignored's
func (q *Queues) PushBroadcast(msg Payload, ignored int64) {
	n := 0
	for _, id := range q.order {
		if id == ignored {
			continue
		}
		q.pending[id] = append(q.pending[id], msg)
		n++
	}
	q.metrics.IncQueued(n)
}

// Process sends every non-empty queue as one batch and clears it. A failing
// player only loses its own batch.
func (q *Queues) Process() {
	for _, id := range q.order {
		batch := q.pending[id]
		if len(batch) == 0 {
			continue
		}
		q.pending[id] = nil

		ch := q.channels[id]
		if ch == nil {
			q.log.Warn("flush without channel",
				zap.Int64("player", id),
				zap.Int("dropped", len(batch)),
				zap.String("class", string(ClassAnomaly)),
				zap.Error(ErrNoChannel))
			q.metrics.IncSendFailed()
			continue
		}
		if err := ch.Send(batch); err != nil {
			q.log.Warn("flush failed",
				zap.Int64("player", id),
				zap.Int("dropped", len(batch)),
				zap.String("class", string(Classify(err))),
				zap.Error(err))
			q.metrics.IncSendFailed()
			continue
		}
		q.metrics.IncFlushed(len(batch))
	}
}

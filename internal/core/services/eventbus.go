package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

// JobEvent is one lifecycle transition of a job, published by the executor
// and fanned out to status streams.
type JobEvent struct {
	JobID     domain.JobID     `json:"job_id"`
	Status    domain.JobStatus `json:"status"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

type subscriber struct {
	id string
	ch chan JobEvent
}

// EventBus fans job lifecycle events out to any number of subscribers,
// keyed by job id. Publishing never blocks: a subscriber that cannot keep up
// has events dropped.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[domain.JobID][]subscriber
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[domain.JobID][]subscriber),
	}
}

// Subscribe returns a channel receiving events for one job, plus an
// unsubscribe function that closes the channel and releases the slot.
func (b *EventBus) Subscribe(jobID domain.JobID) (<-chan JobEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscriber{
		id: uuid.New().String(),
		ch: make(chan JobEvent, 64),
	}
	b.subs[jobID] = append(b.subs[jobID], sub)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[jobID]
		for i, s := range subs {
			if s.id == sub.id {
				close(s.ch)
				b.subs[jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[jobID]) == 0 {
			delete(b.subs, jobID)
		}
	}

	return sub.ch, unsub
}

// Publish delivers the event to every subscriber of its job.
func (b *EventBus) Publish(e JobEvent) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs[e.JobID] {
		select {
		case s.ch <- e:
		default:
			b.logger.Warn("event bus subscriber full, dropping event", "job_id", e.JobID)
		}
	}
}

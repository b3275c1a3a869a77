package event

import (
	"context"
	"sync"

	"ndax_bridge/internal/domain"
)

// DefaultCapacity is the bound of every fabric queue.
const DefaultCapacity = 5

// Queue is a bounded FIFO of envelopes with one consumer.
// Put blocks while the queue is full. Once the consumer calls Abandon,
// pending and future Puts fail with domain.ErrQueueAbandoned.
type Queue struct {
	name string
	ch   chan Envelope

	gone      chan struct{}
	abandoned sync.Once
}

// NewQueue creates a queue holding at most capacity envelopes.
func NewQueue(name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		name: name,
		ch:   make(chan Envelope, capacity),
		gone: make(chan struct{}),
	}
}

// Name identifies the queue in logs.
func (q *Queue) Name() string { return q.name }

// Put enqueues env, waiting for room.
func (q *Queue) Put(ctx context.Context, env Envelope) error {
	// Checked first so a stopped consumer wins over free buffer space.
	select {
	case <-q.gone:
		return domain.ErrQueueAbandoned
	default:
	}

	select {
	case q.ch <- env:
		return nil
	case <-q.gone:
		return domain.ErrQueueAbandoned
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut enqueues env only if there is room right now.
func (q *Queue) TryPut(env Envelope) bool {
	select {
	case <-q.gone:
		return false
	default:
	}

	select {
	case q.ch <- env:
		return true
	default:
		return false
	}
}

// Get dequeues the oldest envelope, waiting until one is available.
func (q *Queue) Get(ctx context.Context) (Envelope, error) {
	select {
	case env := <-q.ch:
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Abandon marks the consumer as gone. Safe to call more than once.
func (q *Queue) Abandon() {
	q.abandoned.Do(func() { close(q.gone) })
}

// Abandoned reports whether Abandon was called.
func (q *Queue) Abandoned() bool {
	select {
	case <-q.gone:
		return true
	default:
		return false
	}
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue bound.
func (q *Queue) Cap() int { return cap(q.ch) }

// Fabric is the set of queues connecting the components.
type Fabric struct {
	MarketData  *Queue // exchange -> strategy
	Commands    *Queue // strategy -> exchange
	Persistence *Queue // exchange -> persistence
	Broadcast   *Queue // exchange -> local subscribers
}

// NewFabric creates the four queues with the same capacity.
func NewFabric(capacity int) *Fabric {
	return &Fabric{
		MarketData:  NewQueue("market_data", capacity),
		Commands:    NewQueue("commands", capacity),
		Persistence: NewQueue("persistence", capacity),
		Broadcast:   NewQueue("broadcast", capacity),
	}
}

// Depths returns the current length of every queue, keyed by name.
func (f *Fabric) Depths() map[string]int {
	return map[string]int{
		f.MarketData.Name():  f.MarketData.Len(),
		f.Commands.Name():    f.Commands.Len(),
		f.Persistence.Name(): f.Persistence.Len(),
		f.Broadcast.Name():   f.Broadcast.Len(),
	}
}

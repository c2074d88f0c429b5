package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/boristopalov/spacenav/pkg/core"
)

// Broker fans iteration events out to subscriber channels. Sends never block:
// an event for a subscriber whose channel is full is dropped and counted, so a
// slow renderer cannot stall a simulation.
type Broker struct {
	subscribers map[string]chan<- core.IterationEvent
	mu          sync.RWMutex
	dropped     atomic.Int64
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]chan<- core.IterationEvent),
	}
}

// OnIteration implements core.Observer.
func (b *Broker) OnIteration(event core.IterationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a channel to receive events
func (b *Broker) Subscribe(id string, ch chan<- core.IterationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; exists {
		return fmt.Errorf("subscriber %s is already subscribed", id)
	}

	b.subscribers[id] = ch
	return nil
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return fmt.Errorf("subscriber %s is not subscribed", id)
	}

	delete(b.subscribers, id)
	return nil
}

// Dropped returns how many events were discarded because a subscriber was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]chan<- core.IterationEvent)
}

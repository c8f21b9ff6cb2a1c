// Package memory keeps published events in process.
package memory

import (
	"context"
	"sync"

	"identrisk/internal/events"
)

// Publisher records events in publish order.
type Publisher struct {
	mu     sync.RWMutex
	events []events.Event
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []events.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

// ForAggregate returns the events of one aggregate in publish order.
func (p *Publisher) ForAggregate(aggregateID string) []events.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []events.Event
	for _, e := range p.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out
}

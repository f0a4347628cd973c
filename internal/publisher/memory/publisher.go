// Package memory records completion events in memory, for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// Publisher implements crawler.Notifier by keeping every event.
type Publisher struct {
	mu     sync.RWMutex
	events []crawler.CompletionEvent
	notify chan struct{}
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{notify: make(chan struct{}, 1)}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, event crawler.CompletionEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []crawler.CompletionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.CompletionEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Published is signalled after each Publish. Only one pending signal is kept.
func (p *Publisher) Published() <-chan struct{} {
	return p.notify
}

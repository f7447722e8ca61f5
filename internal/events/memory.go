package events

import (
	"context"
	"sync"
)

// Published is one envelope as handed to a MemoryPublisher.
type Published struct {
	Key      string
	Envelope Envelope
}

// MemoryPublisher keeps the most recent envelopes in process.
type MemoryPublisher struct {
	mu     sync.Mutex
	limit  int
	events []Published
}

// NewMemoryPublisher keeps at most limit envelopes; older ones are dropped.
func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryPublisher{limit: limit}
}

func (p *MemoryPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, Published{Key: key, Envelope: env})
	if over := len(p.events) - p.limit; over > 0 {
		p.events = append([]Published(nil), p.events[over:]...)
	}
	return nil
}

// Events returns a copy of the retained envelopes, oldest first.
func (p *MemoryPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// Discard drops every envelope.
type Discard struct{}

func (Discard) Publish(context.Context, string, Envelope) error { return nil }

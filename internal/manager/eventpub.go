package manager

import (
	"sync"

	"github.com/rs/zerolog"
)

// LogPublisher writes every event as one debug line.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Log.Debug().Str("event", e.Name)
	if e.Device != "" {
		ev = ev.Str("device", e.Device)
	}
	ev.Fields(e.Fields).Msg("manager event")
}

// MemoryPublisher keeps events for inspection in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Named returns the events called name, oldest first.
func (p *MemoryPublisher) Named(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

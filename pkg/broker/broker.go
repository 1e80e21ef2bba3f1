// Package broker fans persisted events out to live listeners.
//
// Every subscriber owns a bounded mailbox. Publish never blocks: when a mailbox
// is full the event is dropped for that subscriber only, so a slow SSE client
// cannot stall the analysis worker. Within one mailbox events keep publish order.
package broker

import (
	"sync"
	"sync/atomic"
	"video-sentinel/entities"
)

const DefaultMailboxSize = 100

// Mailbox is one subscriber's bounded FIFO.
type Mailbox struct {
	ch      chan entities.Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Events is closed once the mailbox is unsubscribed.
func (m *Mailbox) Events() <-chan entities.Event {
	return m.ch
}

func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}

type Stats struct {
	Published   uint64
	Sent        uint64
	Dropped     uint64
	Subscribers int
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[*Mailbox]struct{}
	capacity    int

	published atomic.Uint64
	// counters of mailboxes that already left
	retiredSent    atomic.Uint64
	retiredDropped atomic.Uint64
}

func New(capacity int) *Broker {
	if capacity < 1 {
		capacity = DefaultMailboxSize
	}
	return &Broker{
		subscribers: make(map[*Mailbox]struct{}),
		capacity:    capacity,
	}
}

func (b *Broker) Subscribe() *Mailbox {
	m := &Mailbox{ch: make(chan entities.Event, b.capacity)}

	b.mu.Lock()
	b.subscribers[m] = struct{}{}
	b.mu.Unlock()

	return m
}

// Unsubscribe removes the mailbox and closes it. Calling it twice is harmless.
func (b *Broker) Unsubscribe(m *Mailbox) {
	if m == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[m]; !ok {
		return
	}
	delete(b.subscribers, m)
	b.retiredSent.Add(m.sent.Load())
	b.retiredDropped.Add(m.dropped.Load())
	close(m.ch)
}

func (b *Broker) Publish(event entities.Event) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for m := range b.subscribers {
		select {
		case m.ch <- event:
			m.sent.Add(1)
		default:
			m.dropped.Add(1)
		}
	}
}

func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		Published:   b.published.Load(),
		Sent:        b.retiredSent.Load(),
		Dropped:     b.retiredDropped.Load(),
		Subscribers: len(b.subscribers),
	}
	for m := range b.subscribers {
		stats.Sent += m.sent.Load()
		stats.Dropped += m.dropped.Load()
	}
	return stats
}

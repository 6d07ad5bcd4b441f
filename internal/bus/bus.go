// Package bus implements the non-blocking publish/subscribe fabric that
// fans task and worker lifecycle events out to every consumer (in
// cmd/fabricd, the terminal display in internal/ui reads a tap) without
// coupling any of them to the coordinator or pool internals.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/types"
)

const (
	subscriberBufSize = 64
	tapBufSize        = 256
)

// Bus is the observable event bus. Task and worker lifecycle events pass
// through it; multiple consumers can each register their own tap channel
// via NewTap without affecting each other.
type Bus struct {
	mu          sync.RWMutex
	log         *zap.Logger
	subscribers map[types.EventType][]chan types.Event
	taps        []chan types.Event
}

// New creates a new Bus.
func New(log *zap.Logger) *Bus {
	return &Bus{
		log:         log,
		subscribers: make(map[types.EventType][]chan types.Event),
	}
}

// Publish fans out ev to all subscribers of ev.Type and to every tap
// channel. Non-blocking: a full subscriber or tap channel drops the event
// with a warning rather than stalling the publisher.
func (b *Bus) Publish(ev types.Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Type]
	taps := b.taps
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("subscriber channel full, event dropped",
				zap.String("type", string(ev.Type)), zap.String("component", string(ev.Component)))
		}
	}

	for _, tap := range taps {
		select {
		case tap <- ev:
		default:
			b.log.Warn("tap channel full, event dropped", zap.String("type", string(ev.Type)))
		}
	}
}

// Subscribe returns a receive-only channel delivering events of type t.
// Each call creates a new, independent subscriber channel.
func (b *Bus) Subscribe(t types.EventType) <-chan types.Event {
	ch := make(chan types.Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[t] = append(b.subscribers[t], ch)
	b.mu.Unlock()
	return ch
}

// NewTap registers and returns a new read-only tap channel that receives
// every published event regardless of type.
func (b *Bus) NewTap() <-chan types.Event {
	ch := make(chan types.Event, tapBufSize)
	b.mu.Lock()
	b.taps = append(b.taps, ch)
	b.mu.Unlock()
	return ch
}

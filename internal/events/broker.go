// Package events fans core agent events out to front-end subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// Type names an event kind.
type Type string

const (
	TypeProcessKilled Type = "process-killed"
	TypeShieldStatus  Type = "shield-status"
	TypeAutoLocked    Type = "auto-locked"
)

// Event is one notification delivered to subscribers.
type Event struct {
	Type        Type
	PID         int                 `json:",omitempty"`
	ProcessName string              `json:",omitempty"`
	Status      domain.ShieldStatus `json:",omitempty"`
	AutoLocked  bool                `json:",omitempty"`
	Time        time.Time
}

const defaultBuffer = 100

// Broker implements domain.EventSink. Publishing never blocks; events are
// dropped for subscribers whose buffer is full.
type Broker struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Int64
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewBroker creates a broker. A nil clock means the real clock.
func NewBroker(clock clockwork.Clock, logger *zap.Logger) *Broker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broker{
		subs:   make(map[chan Event]struct{}),
		clock:  clock,
		logger: logger,
	}
}

// Subscribe registers a buffered channel of events.
func (b *Broker) Subscribe(buf int) chan Event {
	if buf <= 0 {
		buf = defaultBuffer
	}
	ch := make(chan Event, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broker) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = b.clock.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			count := b.dropped.Add(1)
			if count == 1 || count%100 == 0 {
				b.logger.Warn("dropped event for slow subscriber",
					zap.String("type", string(ev.Type)),
					zap.Int64("total_dropped", count))
			}
		}
	}
}

// DroppedCount returns the total number of events dropped due to slow subscribers.
func (b *Broker) DroppedCount() int64 {
	return b.dropped.Load()
}

// ProcessKilled implements domain.EventSink.
func (b *Broker) ProcessKilled(pid int, processName string) {
	b.Publish(Event{Type: TypeProcessKilled, PID: pid, ProcessName: processName})
}

// ShieldChanged implements domain.EventSink.
func (b *Broker) ShieldChanged(status domain.ShieldStatus) {
	b.Publish(Event{Type: TypeShieldStatus, Status: status})
}

// AutoLocked implements domain.EventSink.
func (b *Broker) AutoLocked(locked bool) {
	b.Publish(Event{Type: TypeAutoLocked, AutoLocked: locked})
}

// Ensure Broker implements domain.EventSink.
var _ domain.EventSink = (*Broker)(nil)

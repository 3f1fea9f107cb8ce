package events

import "sync"

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// SubscriberFunc adapts a function to a Subscriber that never closes.
type SubscriberFunc func(ev Event)

// Receive calls f(ev).
func (f SubscriberFunc) Receive(ev Event) { f(ev) }

// Closed always returns false.
func (f SubscriberFunc) Closed() bool { return false }

type subscription struct {
	id    int
	all   bool
	types map[EventType]bool
	sub   Subscriber
}

func (s subscription) wants(t EventType) bool {
	return s.all || s.types[t]
}

// Bus delivers events synchronously to subscribers in the order they were
// registered. Per-type and global subscriptions share a single ordering,
// so a global subscriber registered before a room subscriber also sees a
// RoomInfo before it.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a subscriber for the given event types and returns
// a registration id for Unsubscribe.
func (b *Bus) Subscribe(sub Subscriber, types ...EventType) int {
	s := subscription{sub: sub, types: make(map[EventType]bool, len(types))}
	for _, t := range types {
		s.types[t] = true
	}
	return b.add(s)
}

// SubscribeFunc registers fn for the given event types.
func (b *Bus) SubscribeFunc(fn func(Event), types ...EventType) int {
	return b.Subscribe(SubscriberFunc(fn), types...)
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) int {
	return b.add(subscription{all: true, sub: sub})
}

func (b *Bus) add(s subscription) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	return s.id
}

// Unsubscribe removes the registration with the given id.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	b.subs = kept
}

// Emit delivers ev to every matching, open subscriber and returns how many
// received it. Delivery happens on the caller's goroutine.
func (b *Bus) Emit(ev Event) int {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	n := 0
	t := ev.Type()
	for _, s := range subs {
		if s.wants(t) && !s.sub.Closed() {
			s.sub.Receive(ev)
			n++
		}
	}
	return n
}

// Subscribers returns the number of registrations.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Cleanup removes closed subscribers.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := b.subs[:0]
	for _, s := range b.subs {
		if !s.sub.Closed() {
			active = append(active, s)
		}
	}
	b.subs = active
}

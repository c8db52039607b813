package stream

import (
	"sync"
)

// CancelFunc detaches a bus subscription.
type CancelFunc = func()

// BusEvent is delivered to bus subscribers.
type BusEvent struct {
	Channel string
	Source  any
	Data    any
}

// Bus is a channel-id based event bus. Each open stream registers two
// channels, StreamChannel(name) and CloseBeforeChannel(name).
type Bus struct {
	mu       sync.Mutex
	channels map[string]*busChannel
	nextID   int
}

type busChannel struct {
	source     any
	registered bool
	subs       map[int]func(BusEvent)
	order      []int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{channels: make(map[string]*busChannel)}
}

// StreamChannel is the bus channel of an open stream.
func StreamChannel(name string) string {
	return "event://stream/" + name
}

// CloseBeforeChannel is notified right before a stream's resource is released.
func CloseBeforeChannel(name string) string {
	return StreamChannel(name) + ":close-before"
}

func (b *Bus) channel(id string) *busChannel {
	ch, ok := b.channels[id]
	if !ok {
		ch = &busChannel{subs: make(map[int]func(BusEvent))}
		b.channels[id] = ch
	}
	return ch
}

// Register declares source as the owner of channel id.
func (b *Bus) Register(id string, source any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := b.channel(id)
	if ch.registered {
		return newError("bus register", id, ErrConflict, "channel already registered")
	}
	ch.source = source
	ch.registered = true
	return nil
}

// Unregister drops the channel and its subscribers.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels, id)
}

// IsRegistered reports whether a source owns channel id.
func (b *Bus) IsRegistered(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[id]
	return ok && ch.registered
}

// Attach subscribes fn to channel id. Subscribing before the channel is
// registered is allowed.
func (b *Bus) Attach(id string, fn func(BusEvent)) CancelFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := b.channel(id)
	b.nextID++
	sid := b.nextID
	ch.subs[sid] = fn
	ch.order = append(ch.order, sid)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.channels[id]; ok {
			delete(ch.subs, sid)
		}
	}
}

// Notify delivers data to every subscriber of a registered channel, in
// subscription order.
func (b *Bus) Notify(id string, source, data any) error {
	b.mu.Lock()
	ch, ok := b.channels[id]
	if !ok || !ch.registered {
		b.mu.Unlock()
		return newError("bus notify", id, ErrNotFound, "channel not registered")
	}
	subs := make([]func(BusEvent), 0, len(ch.subs))
	for _, sid := range ch.order {
		if fn, ok := ch.subs[sid]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.Unlock()

	ev := BusEvent{Channel: id, Source: source, Data: data}
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

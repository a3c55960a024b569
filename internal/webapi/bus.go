package webapi

// Handler consumes a notification. Handlers run inside a loop turn.
type Handler func(Notification)

type subscription struct {
	handler Handler
	active  bool
}

// Bus routes notifications to subscribers.
//
// Every handler subscribed to a kind is offered every notification of that
// kind, in subscription order. A notification is never consumed by a single
// handler: when two pending operations are both interested in the same
// notification, both see it.
//
// Thread-safety: Bus is not safe for concurrent use. Drive it from one
// goroutine (normally the Loop).
type Bus struct {
	subs    map[Kind][]*subscription
	ready   bool
	waiting []func()
}

// NewBus creates an empty bus that has not yet observed BecameReady.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]*subscription)}
}

// Subscribe registers handler for kind and returns a function that removes
// it. The returned function is idempotent.
func (b *Bus) Subscribe(kind Kind, handler Handler) (unsubscribe func()) {
	sub := &subscription{handler: handler, active: true}
	b.subs[kind] = append(b.subs[kind], sub)

	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		list := b.subs[kind]
		for i, s := range list {
			if s == sub {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers handler for every kind.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	unsubs := make([]func(), 0, len(Kinds))
	for _, k := range Kinds {
		unsubs = append(unsubs, b.Subscribe(k, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// WhenReady runs fn once the API is ready. If BecameReady has already been
// published, fn runs immediately.
func (b *Bus) WhenReady(fn func()) {
	if b.ready {
		fn()
		return
	}
	b.waiting = append(b.waiting, fn)
}

// Ready reports whether BecameReady has been published.
func (b *Bus) Ready() bool {
	return b.ready
}

// Subscribers returns the number of live handlers for kind.
func (b *Bus) Subscribers(kind Kind) int {
	return len(b.subs[kind])
}

// Publish delivers n to every subscriber of n.Kind. A BecameReady
// notification first releases the WhenReady waiters.
func (b *Bus) Publish(n Notification) {
	if n.Kind == KindBecameReady && !b.ready {
		b.ready = true
		waiting := b.waiting
		b.waiting = nil
		for _, fn := range waiting {
			fn()
		}
	}

	// Snapshot so handlers may subscribe or unsubscribe during delivery.
	list := append([]*subscription(nil), b.subs[n.Kind]...)
	for _, sub := range list {
		if !sub.active {
			continue
		}
		sub.handler(n)
	}
}

package monitor

import (
	"log/slog"
	"sync"

	"github.com/twistedxcom/vigil/internal/logging"
	"github.com/twistedxcom/vigil/internal/syncx"
)

var pubLog = logging.ForComponent(logging.CompPublisher)

// Listener receives each debounced status publish. Listeners run on the
// publish goroutine; long work should be handed off.
type Listener func(StatusSnapshot)

// Subscription identifies a registered listener.
type Subscription uint64

// Publisher is the externally facing read model: the current aggregate
// status behind a syncx.Cell, plus a subscription registry. It is written
// only by the engine's publish step and read by any number of concurrent
// callers.
type Publisher struct {
	cell *syncx.Cell[StatusSnapshot]

	// deliverMu serializes whole publishes so a slow listener cannot see
	// two deliveries interleave or arrive out of order.
	deliverMu sync.Mutex

	mu        sync.Mutex
	nextID    Subscription
	order     []Subscription
	listeners map[Subscription]Listener
}

// NewPublisher returns a Publisher whose initial snapshot is empty with a
// global status of StatusNotRunning.
func NewPublisher() *Publisher {
	return &Publisher{
		cell:      syncx.NewCell(StatusSnapshot{Global: StatusNotRunning}),
		listeners: make(map[Subscription]Listener),
	}
}

// Current returns the most recently published snapshot.
func (p *Publisher) Current() StatusSnapshot {
	return p.cell.Get()
}

// Subscribe registers a listener and returns its handle. Listeners are
// notified in registration order.
func (p *Publisher) Subscribe(l Listener) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.order = append(p.order, id)
	p.listeners[id] = l
	return id
}

// Unsubscribe removes a listener. Safe to call from within that
// listener's own callback; unknown handles are ignored.
func (p *Publisher) Unsubscribe(id Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[id]; !ok {
		return
	}
	delete(p.listeners, id)
	for i, sid := range p.order {
		if sid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Publish stores the snapshot and notifies listeners in registration
// order. The listener set is copied first, so callbacks run without the
// registry lock and may subscribe or unsubscribe freely. A panicking
// listener is logged and skipped; delivery continues to the rest.
//
// Publishes are serialized: a Publish that arrives while a slow listener
// is still handling the previous one waits its turn, so every listener
// observes snapshots in publish order. Listeners must not call Publish
// from within their callback.
//
// The engine calls this from its debounced publish step; direct calls
// are for wiring sinks in isolation.
func (p *Publisher) Publish(s StatusSnapshot) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.cell.Set(s)

	p.mu.Lock()
	ids := make([]Subscription, len(p.order))
	copy(ids, p.order)
	listeners := make(map[Subscription]Listener, len(p.listeners))
	for id, l := range p.listeners {
		listeners[id] = l
	}
	p.mu.Unlock()

	for _, id := range ids {
		l := listeners[id]
		deliver(id, l, s)
	}
}

func deliver(id Subscription, l Listener, s StatusSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			pubLog.Error("listener_panic",
				slog.Uint64("subscription", uint64(id)),
				slog.Any("panic", r),
			)
		}
	}()
	l(s)
}

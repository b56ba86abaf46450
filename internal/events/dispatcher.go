// Package events implements the in-process publish/subscribe registry
// that fans inbound push frames out to interested components.
package events

import (
	"log"
	"sync"
)

// Wildcard subscriptions receive every dispatched event regardless of
// type. Used by consumers that want all traffic, e.g. connection-state
// observers and the watch command.
const Wildcard = "*"

// Handler receives a dispatched event payload.
type Handler func(payload interface{})

type subscription struct {
	id      uint64
	handler Handler
}

// Dispatcher routes events to subscribers by event-type string.
// Dispatch is synchronous: every handler runs to completion before
// Dispatch returns, in registration order. Handlers must hand
// long-running work off to a goroutine or they stall delivery.
type Dispatcher struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscription
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for eventType and returns a function
// that revokes exactly that registration. Registering the same handler
// twice yields two independent deliveries; revoking one never affects
// the other.
func (d *Dispatcher) Subscribe(eventType string, handler Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.subs[eventType] = append(d.subs[eventType], subscription{id: id, handler: handler})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		list := d.subs[eventType]
		for i, sub := range list {
			if sub.id == id {
				d.subs[eventType] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(d.subs[eventType]) == 0 {
			delete(d.subs, eventType)
		}
	}
}

// Dispatch delivers payload to every handler registered for eventType,
// then to every wildcard handler. Iteration runs over a snapshot taken
// up front, so handlers may subscribe or unsubscribe mid-dispatch
// without corrupting delivery. A panicking handler is isolated and does
// not stop delivery to the rest.
func (d *Dispatcher) Dispatch(eventType string, payload interface{}) {
	d.mu.Lock()
	snapshot := make([]subscription, 0, len(d.subs[eventType])+len(d.subs[Wildcard]))
	snapshot = append(snapshot, d.subs[eventType]...)
	if eventType != Wildcard {
		snapshot = append(snapshot, d.subs[Wildcard]...)
	}
	d.mu.Unlock()

	for _, sub := range snapshot {
		invoke(eventType, sub.handler, payload)
	}
}

// Close drops every subscription. Subsequent dispatches deliver to
// no one; outstanding unsubscribe functions become no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = make(map[string][]subscription)
}

func invoke(eventType string, handler Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Events] handler for %q panicked: %v", eventType, r)
		}
	}()
	handler(payload)
}

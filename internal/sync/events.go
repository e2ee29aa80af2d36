package sync

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names emitted by the bridge.
const (
	EventSyncComplete   = "sync:complete"
	EventBookingCreated = "booking:created"
)

// Handler receives an event payload.
type Handler func(payload any)

type subscription struct {
	id    int
	event string
	fn    Handler
}

// Emitter delivers events to subscribers synchronously, in registration
// order. A panicking subscriber is isolated: it is logged and the
// remaining subscribers still run.
type Emitter struct {
	mu   sync.Mutex
	next int
	subs []subscription
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers fn for an event and returns an unsubscribe func.
// A nil handler is ignored.
func (e *Emitter) Subscribe(event string, fn Handler) func() {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.next++
	id := e.next
	e.subs = append(e.subs, subscription{id: id, event: event, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit invokes every subscriber of event with payload.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	matched := make([]Handler, 0, len(e.subs))
	for _, sub := range e.subs {
		if sub.event == event {
			matched = append(matched, sub.fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range matched {
		e.invoke(event, fn, payload)
	}
}

func (e *Emitter) invoke(event string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event": event,
				"panic": r,
			}).Error("Event listener panicked")
		}
	}()
	fn(payload)
}

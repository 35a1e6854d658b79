// Package events is the typed notification sink for payment outcomes.
// External order-management extensions subscribe to named events; the
// order state driver emits accepted/pending/rejected with the order id
// and the raw authorization payload.
package events

import (
	"log"
	"sync"
)

// Event names emitted by the gateway.
const (
	EventAccepted     = "accepted"
	EventPending      = "pending"
	EventRejected     = "rejected"
	EventNotification = "notification"
)

// Handler receives one emitted event. orderID identifies the merchant
// order; payload carries the authorization result as received.
type Handler func(orderID string, payload interface{})

// Emitter is the contract the driver emits through.
type Emitter interface {
	Emit(name, orderID string, payload interface{})
}

// Registry is an in-process Emitter with ordered subscription lists.
// Handlers for a name are invoked synchronously in registration order.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]Handler)}
}

// Subscribe appends a handler for the named event.
func (r *Registry) Subscribe(name string, h Handler) {
	if h == nil {
		panic("event handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], h)
}

// Emit invokes every handler registered for name, in registration
// order. A panicking handler does not prevent later handlers from
// running; the panic is logged and swallowed so an outcome transition
// never fails because of an extension.
func (r *Registry) Emit(name, orderID string, payload interface{}) {
	r.mu.RLock()
	handlers := make([]Handler, len(r.handlers[name]))
	copy(handlers, r.handlers[name])
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("Events: handler for %q panicked: %v", name, rec)
				}
			}()
			h(orderID, payload)
		}()
	}
}

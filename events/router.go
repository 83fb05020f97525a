package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// TelemetrySink receives events for best-effort delivery to a remote
// collector. Delivery failures must never propagate to publishers.
type TelemetrySink interface {
	Deliver(event Event) error
}

// SubscriptionID identifies one public subscription.
type SubscriptionID uint64

// Handler receives live, typed events.
type Handler func(Event)

const telemetryQueueSize = 256

// Router fans events out to public subscribers and hands them to the
// telemetry sink, according to each event's destination tag.
//
// Delivery to subscribers is synchronous with respect to Publish; telemetry
// hand-off is asynchronous through a bounded queue drained by a worker
// goroutine. Publish never fails and never panics.
type Router struct {
	mu          sync.RWMutex
	subscribers map[SubscriptionID]Handler
	nextID      SubscriptionID

	sink      TelemetrySink
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once

	logger *logrus.Logger
}

// NewRouter creates an event router. sink may be nil when telemetry is
// disabled; analytics-tagged events are then dropped.
func NewRouter(sink TelemetrySink, logger *logrus.Logger) *Router {
	r := &Router{
		subscribers: make(map[SubscriptionID]Handler),
		sink:        sink,
		queue:       make(chan Event, telemetryQueueSize),
		done:        make(chan struct{}),
		logger:      logger,
	}
	if sink != nil {
		go r.drainTelemetry()
	}
	return r
}

// Subscribe registers a handler for public events and returns its
// subscription id. Safe to call concurrently with Publish.
func (r *Router) Subscribe(handler Handler) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.subscribers[id] = handler
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (r *Router) Unsubscribe(id SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscribers, id)
}

// Publish routes an event to public subscribers and/or the telemetry sink
// based on its destination. It never returns an error: subscriber panics are
// recovered and logged, telemetry failures are swallowed by the worker, and a
// full telemetry queue drops the event with a warning.
func (r *Router) Publish(event Event) {
	if event == nil {
		return
	}

	if event.Destination() != DestinationAnalyticsOnly {
		r.mu.RLock()
		handlers := make([]Handler, 0, len(r.subscribers))
		for _, h := range r.subscribers {
			handlers = append(handlers, h)
		}
		r.mu.RUnlock()

		for _, h := range handlers {
			r.callSubscriber(h, event)
		}
	}

	if r.sink != nil && event.Destination() != DestinationPublicOnly {
		select {
		case r.queue <- event:
		default:
			r.logger.WithField("event_type", event.EventType()).Warn("Telemetry queue full, dropping event")
		}
	}
}

// Reset removes all subscribers. Intended for test isolation.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers = make(map[SubscriptionID]Handler)
}

// Close stops the telemetry worker. Events already queued may be dropped.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// callSubscriber invokes one handler, isolating its panics from other
// subscribers and from the publisher.
func (r *Router) callSubscriber(h Handler, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"event_type": event.EventType(),
				"panic":      rec,
			}).Error("Event subscriber panicked")
		}
	}()
	h(event)
}

func (r *Router) drainTelemetry() {
	for {
		select {
		case event := <-r.queue:
			if err := r.sink.Deliver(event); err != nil {
				r.logger.WithError(err).WithField("event_type", event.EventType()).Debug("Telemetry delivery failed")
			}
		case <-r.done:
			return
		}
	}
}

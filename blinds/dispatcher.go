package blinds

import (
	"context"
	"sync"
)

// DefaultQueueDepth bounds the dispatcher queue
const DefaultQueueDepth = 64

// Dispatcher serialises events from transports, timers and the manager onto
// one goroutine. Post blocks while the queue is full and returns immediately
// once the dispatcher has stopped.
type Dispatcher struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher creates a dispatcher with a queue of depth events
func NewDispatcher(depth int) *Dispatcher {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Dispatcher{
		events: make(chan Event, depth),
		done:   make(chan struct{}),
	}
}

// Post implements EventSink
func (d *Dispatcher) Post(ev Event) {
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

// Run feeds events to h until ctx is done
func (d *Dispatcher) Run(ctx context.Context, h EventHandler) error {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			h.HandleEvent(ev)
		}
	}
}

// Done is closed when Run returns
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

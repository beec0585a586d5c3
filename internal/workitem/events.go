package workitem

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
)

// EventKind names what happened to a work item.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventTransitions EventKind = "transitioned"
	EventOutputs     EventKind = "outputs"
)

// Event is a snapshot of a work item taken when it changed.
type Event struct {
	Kind EventKind `json:"kind"`
	From Status    `json:"from,omitempty"`
	Item *WorkItem `json:"item"`
}

// Observer reacts to work item events. Errors are logged and otherwise ignored.
type Observer interface {
	Name() string
	Observe(ctx context.Context, evt Event) error
}

// Dispatcher delivers events to observers off the caller's goroutine.
// Events for one item always go to the same worker, so each observer sees
// an item's events in order.
type Dispatcher struct {
	observers []Observer
	shards    []chan Event
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher with the given number of workers.
func NewDispatcher(workers int, logger *zap.Logger, observers ...Observer) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{observers: observers, logger: logger}
	for i := 0; i < workers; i++ {
		d.shards = append(d.shards, make(chan Event, 256))
	}
	return d
}

// Start runs the workers until ctx is cancelled or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, ch := range d.shards {
		d.wg.Add(1)
		go func(ch chan Event) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-ch:
					if !ok {
						return
					}
					d.deliver(ctx, evt)
				}
			}
		}(ch)
	}
}

// Close stops accepting events and waits for the queues to drain.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	d.closeMu.Unlock()

	for _, ch := range d.shards {
		close(ch)
	}
	d.wg.Wait()
}

// publish never blocks; a full queue drops the event.
func (d *Dispatcher) publish(evt Event) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return
	}
	h := fnv.New32a()
	h.Write([]byte(evt.Item.ID))
	ch := d.shards[h.Sum32()%uint32(len(d.shards))]
	select {
	case ch <- evt:
	default:
		d.logger.Warn("work item event queue full, dropping event",
			zap.String("id", evt.Item.ID), zap.String("kind", string(evt.Kind)))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	for _, o := range d.observers {
		if err := o.Observe(ctx, evt); err != nil {
			d.logger.Warn("work item observer failed",
				zap.String("observer", o.Name()),
				zap.String("id", evt.Item.ID),
				zap.String("kind", string(evt.Kind)),
				zap.Error(err))
		}
	}
}

package connection

import (
	"log/slog"
	"sync"
)

// dispatcher runs callbacks one at a time, in the order they were pushed.
// The queue is unbounded so the scheduler loop never waits on a slow handler.
type dispatcher struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{wake: make(chan struct{}, 1)}
}

func (d *dispatcher) push(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run(stop <-chan struct{}) {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			invoke(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-d.wake:
		case <-stop:
			return
		}
	}
}

func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("connection.dispatcher.handler_panic",
				"component", "connection",
				"event", "dispatch.panic",
				"panic", r,
			)
		}
	}()
	fn()
}

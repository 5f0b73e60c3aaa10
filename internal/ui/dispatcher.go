package ui

import (
	"sync"

	"fyne.io/fyne/v2"
)

// Dispatcher delivers callbacks on the UI-safe execution context.
// Callbacks run one at a time in submission order.
type Dispatcher interface {
	Do(fn func())
}

// FyneDispatcher delivers callbacks on the Fyne main goroutine
type FyneDispatcher struct{}

// NewFyneDispatcher creates a dispatcher backed by fyne.Do.
// A Fyne app must be running for callbacks to be delivered.
func NewFyneDispatcher() FyneDispatcher {
	return FyneDispatcher{}
}

// Do schedules fn on the Fyne main goroutine
func (FyneDispatcher) Do(fn func()) {
	fyne.Do(fn)
}

// SerialDispatcher runs callbacks on a single goroutine draining an unbounded queue.
// It is used in headless mode and in tests.
type SerialDispatcher struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

// NewSerialDispatcher starts the delivery goroutine
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

// Do enqueues fn. Callbacks submitted after Close are dropped.
func (d *SerialDispatcher) Do(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every callback submitted before the call has run
func (d *SerialDispatcher) Flush() {
	done := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.mu.Unlock()

	d.Do(func() { close(done) })

	select {
	case <-done:
	case <-d.stopped:
	}
}

// Close runs the callbacks already queued and stops the delivery goroutine
func (d *SerialDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.stopped
}

func (d *SerialDispatcher) loop() {
	defer close(d.stopped)

	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

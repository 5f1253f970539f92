package recognizer

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// Dispatcher delivers events to a registry on a single goroutine,
// in the order they were posted.
type Dispatcher struct {
	registry *Registry
	pool     *workerpool.WorkerPool
	logger   *logrus.Entry

	// generation is bumped by Purge; queued tasks from older generations are dropped
	generation atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the dispatcher goroutine
func NewDispatcher(registry *Registry, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		pool:     workerpool.New(1),
		logger:   logger,
	}
}

// Post enqueues ev. It never blocks on listeners. Events posted after Close are dropped.
func (d *Dispatcher) Post(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	gen := d.generation.Load()
	d.pool.Submit(func() {
		if d.generation.Load() != gen {
			return
		}
		d.deliver(ev)
	})
}

// Purge drops every event that is queued but not yet delivered
func (d *Dispatcher) Purge() {
	d.generation.Add(1)
}

// Flush blocks until everything posted before the call has been delivered.
// It must not be called from a listener callback.
func (d *Dispatcher) Flush() {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	d.pool.SubmitWait(func() {})
}

// Close delivers what is queued and stops the dispatcher goroutine
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.pool.StopWait()
}

func (d *Dispatcher) deliver(ev Event) {
	for _, reg := range d.registry.registrations() {
		// a listener removed after the snapshot was taken is skipped
		d.registry.call(reg, func(l Listener) { d.invoke(l, ev) })
	}
}

func (d *Dispatcher) invoke(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"event": ev.Kind,
				"panic": r,
			}).Error("Listener panicked")
		}
	}()

	if el, ok := l.(EventListener); ok {
		el.OnEvent(ev)
		return
	}

	switch ev.Kind {
	case EventSpeechBegin:
		l.OnBeginningOfSpeech()
	case EventSpeechEnd:
		l.OnEndOfSpeech()
	case EventPartial:
		l.OnPartialResult(ev.Hypothesis)
	case EventFinal:
		l.OnResult(ev.Hypothesis)
	case EventTimeout:
		l.OnTimeout()
	case EventError:
		l.OnError(ev.Err)
	}
}

package control

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

// DefaultHistory is how many recent events a hub keeps
const DefaultHistory = 64

// Hub fans session events out to subscribers and keeps a short history.
// Slow subscribers lose events rather than stall the dispatcher.
type Hub struct {
	logger *logrus.Entry

	mu      sync.Mutex
	subs    map[chan recognizer.Event]struct{}
	history []recognizer.Event
	next    int
	full    bool
	dropped uint64
}

// NewHub creates a hub remembering up to history events
func NewHub(history int, logger *logrus.Entry) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = logrus.NewEntry(logging.Discard())
	}
	return &Hub{
		logger:  logger,
		subs:    make(map[chan recognizer.Event]struct{}),
		history: make([]recognizer.Event, history),
	}
}

// OnEvent records ev and forwards it to every subscriber
func (h *Hub) OnEvent(ev recognizer.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history[h.next] = ev
	h.next = (h.next + 1) % len(h.history)
	if h.next == 0 {
		h.full = true
	}

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
			h.logger.WithField("kind", ev.Kind).Warn("Subscriber is full, event dropped")
		}
	}
}

func (h *Hub) OnBeginningOfSpeech()              {}
func (h *Hub) OnEndOfSpeech()                    {}
func (h *Hub) OnPartialResult(_ *stt.Hypothesis) {}
func (h *Hub) OnResult(_ *stt.Hypothesis)        {}
func (h *Hub) OnTimeout()                        {}
func (h *Hub) OnError(_ error)                   {}

// Subscribe returns a channel of future events and a func that ends the
// subscription and closes the channel
func (h *Hub) Subscribe(buffer int) (<-chan recognizer.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan recognizer.Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n of the latest events, oldest first; n <= 0 means all
func (h *Hub) Recent(n int) []recognizer.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []recognizer.Event
	if h.full {
		out = append(out, h.history[h.next:]...)
	}
	out = append(out, h.history[:h.next]...)

	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Dropped returns how many deliveries were skipped for full subscribers
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

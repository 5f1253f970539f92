// Package controltest provides an in-memory control.Controller for tests.
package controltest

import (
	"sync"
	"time"

	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

// Controller records calls and lets tests push events
type Controller struct {
	mu        sync.Mutex
	hub       *control.Hub
	listening bool
	search    string

	// SearchErr, when set, is returned by SetSearch and StartListening
	SearchErr error

	// Starts records every StartListening call
	Starts []Start
}

// Start is one recorded StartListening call
type Start struct {
	Search    string
	TimeoutMs int
}

// New returns an idle controller
func New() *Controller {
	return &Controller{hub: control.NewHub(0, nil), search: stt.DefaultSearch}
}

func (c *Controller) StartListening(search string, timeoutMs int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Starts = append(c.Starts, Start{Search: search, TimeoutMs: timeoutMs})
	if c.listening {
		return false, nil
	}
	if search != "" {
		if c.SearchErr != nil {
			return false, c.SearchErr
		}
		c.search = search
	}
	c.listening = true
	return true, nil
}

func (c *Controller) Stop() bool {
	c.mu.Lock()
	was := c.listening
	c.listening = false
	c.mu.Unlock()

	if was {
		c.Emit(recognizer.EventFinal, "stopped")
	}
	return was
}

func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.listening
	c.listening = false
	return was
}

func (c *Controller) SetSearch(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listening {
		return recognizer.ErrListening
	}
	if c.SearchErr != nil {
		return c.SearchErr
	}
	c.search = name
	return nil
}

func (c *Controller) Status() control.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := recognizer.Idle
	if c.listening {
		state = recognizer.Recording
	}
	return control.Status{
		SessionID:  "test-session",
		State:      state.String(),
		Listening:  c.listening,
		Search:     c.search,
		SampleRate: 16000,
	}
}

func (c *Controller) Subscribe(buffer int) (<-chan recognizer.Event, func()) {
	return c.hub.Subscribe(buffer)
}

func (c *Controller) Recent(n int) []recognizer.Event {
	return c.hub.Recent(n)
}

// Emit delivers an event as the session's dispatcher would. Text is used
// for Partial and Final events.
func (c *Controller) Emit(kind recognizer.EventKind, text string) {
	ev := recognizer.Event{
		Kind:        kind,
		SessionID:   "test-session",
		UtteranceID: "test-utterance",
		Time:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if text != "" && (kind == recognizer.EventPartial || kind == recognizer.EventFinal) {
		ev.Hypothesis = &stt.Hypothesis{Text: text, Score: -100}
	}
	c.hub.OnEvent(ev)
}

// Subscribers returns the number of live subscriptions
func (c *Controller) Subscribers() int {
	return c.hub.Subscribers()
}

package recognizer

import "github.com/emmett/sphinxvox/internal/stt"

// Listener receives recognition callbacks on the dispatcher goroutine.
// Implementations must be comparable; pointers are the usual choice.
type Listener interface {
	OnBeginningOfSpeech()
	OnEndOfSpeech()
	OnPartialResult(hyp *stt.Hypothesis)
	OnResult(hyp *stt.Hypothesis)
	OnTimeout()
	OnError(err error)
}

// EventListener is implemented by listeners that want the whole event
// (IDs and timestamp) instead of the per-kind callbacks.
type EventListener interface {
	OnEvent(ev Event)
}

// ListenerFuncs is a Listener built from optional funcs. Use it by pointer.
type ListenerFuncs struct {
	BeginningOfSpeech func()
	EndOfSpeech       func()
	PartialResult     func(hyp *stt.Hypothesis)
	Result            func(hyp *stt.Hypothesis)
	Timeout           func()
	Error             func(err error)
}

func (f *ListenerFuncs) OnBeginningOfSpeech() {
	if f.BeginningOfSpeech != nil {
		f.BeginningOfSpeech()
	}
}

func (f *ListenerFuncs) OnEndOfSpeech() {
	if f.EndOfSpeech != nil {
		f.EndOfSpeech()
	}
}

func (f *ListenerFuncs) OnPartialResult(hyp *stt.Hypothesis) {
	if f.PartialResult != nil {
		f.PartialResult(hyp)
	}
}

func (f *ListenerFuncs) OnResult(hyp *stt.Hypothesis) {
	if f.Result != nil {
		f.Result(hyp)
	}
}

func (f *ListenerFuncs) OnTimeout() {
	if f.Timeout != nil {
		f.Timeout()
	}
}

func (f *ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// EventHandler adapts a func(Event) into a Listener
type EventHandler struct {
	fn func(Event)
}

// NewEventHandler wraps fn
func NewEventHandler(fn func(Event)) *EventHandler {
	return &EventHandler{fn: fn}
}

func (h *EventHandler) OnEvent(ev Event) { h.fn(ev) }

func (h *EventHandler) OnBeginningOfSpeech()              {}
func (h *EventHandler) OnEndOfSpeech()                    {}
func (h *EventHandler) OnPartialResult(_ *stt.Hypothesis) {}
func (h *EventHandler) OnResult(_ *stt.Hypothesis)        {}
func (h *EventHandler) OnTimeout()                        {}
func (h *EventHandler) OnError(_ error)                   {}

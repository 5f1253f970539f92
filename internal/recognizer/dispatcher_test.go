package recognizer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/stt"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry) {
	t.Helper()
	registry := NewRegistry()
	d := NewDispatcher(registry, logging.Discard().WithField("test", t.Name()))
	t.Cleanup(d.Close)
	return d, registry
}

func TestDispatcherOrderAndMapping(t *testing.T) {
	d, registry := newTestDispatcher(t)
	l := &recordingListener{}
	registry.Add(l)

	hyp := &stt.Hypothesis{Text: "hello"}
	fault := errors.New("boom")
	d.Post(Event{Kind: EventSpeechBegin})
	d.Post(Event{Kind: EventPartial, Hypothesis: hyp})
	d.Post(Event{Kind: EventSpeechEnd})
	d.Post(Event{Kind: EventFinal, Hypothesis: hyp})
	d.Post(Event{Kind: EventTimeout})
	d.Post(Event{Kind: EventError, Err: fault})
	d.Flush()

	assert.Equal(t, []EventKind{
		EventSpeechBegin, EventPartial, EventSpeechEnd, EventFinal, EventTimeout, EventError,
	}, l.Kinds())
	assert.Equal(t, []error{fault}, l.Errors())
}

func TestDispatcherPurge(t *testing.T) {
	d, registry := newTestDispatcher(t)
	l := &recordingListener{}
	registry.Add(l)

	release := make(chan struct{})
	d.pool.Submit(func() { <-release })

	d.Post(Event{Kind: EventPartial})
	d.Post(Event{Kind: EventFinal})
	d.Purge()
	d.Post(Event{Kind: EventTimeout})
	close(release)
	d.Flush()

	assert.Equal(t, []EventKind{EventTimeout}, l.Kinds())
}

func TestDispatcherRecoversListenerPanic(t *testing.T) {
	d, registry := newTestDispatcher(t)
	registry.Add(&ListenerFuncs{
		Result: func(*stt.Hypothesis) { panic("listener bug") },
	})
	l := &recordingListener{}
	registry.Add(l)

	d.Post(Event{Kind: EventFinal})
	d.Post(Event{Kind: EventTimeout})
	d.Flush()

	assert.Equal(t, []EventKind{EventFinal, EventTimeout}, l.Kinds())
}

func TestDispatcherSkipsListenerRemovedDuringDelivery(t *testing.T) {
	d, registry := newTestDispatcher(t)
	second := &recordingListener{}
	first := &ListenerFuncs{
		Timeout: func() { registry.Remove(second) },
	}
	registry.Add(first)
	registry.Add(second)

	d.Post(Event{Kind: EventTimeout})
	d.Flush()

	assert.Empty(t, second.Kinds())
	assert.False(t, registry.Contains(second))
}

func TestDispatcherSkipsListenerRemovedFromAnotherGoroutine(t *testing.T) {
	d, registry := newTestDispatcher(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	first := &ListenerFuncs{
		Timeout: func() {
			close(entered)
			<-release
		},
	}
	second := &recordingListener{}
	registry.Add(first)
	registry.Add(second)

	d.Post(Event{Kind: EventTimeout})
	<-entered
	// delivery to second is pending in the same event
	registry.Remove(second)
	close(release)
	d.Flush()

	assert.Empty(t, second.Kinds())
}

func TestDispatcherReAddDuringDelivery(t *testing.T) {
	d, registry := newTestDispatcher(t)
	second := &recordingListener{}
	var once sync.Once
	first := &ListenerFuncs{
		Timeout: func() {
			once.Do(func() {
				registry.Remove(second)
				registry.Add(second)
			})
		},
	}
	registry.Add(first)
	registry.Add(second)

	d.Post(Event{Kind: EventTimeout})
	d.Flush()
	assert.Empty(t, second.Kinds())

	d.Post(Event{Kind: EventTimeout})
	d.Flush()
	assert.Equal(t, []EventKind{EventTimeout}, second.Kinds())
}

func TestDispatcherListenerRemovesItself(t *testing.T) {
	d, registry := newTestDispatcher(t)
	var calls atomic.Int32
	self := &ListenerFuncs{}
	self.Timeout = func() {
		calls.Add(1)
		registry.Remove(self)
	}
	registry.Add(self)

	d.Post(Event{Kind: EventTimeout})
	d.Post(Event{Kind: EventTimeout})
	d.Flush()

	assert.EqualValues(t, 1, calls.Load())
	assert.Zero(t, registry.Len())
}

func TestDispatcherEventListener(t *testing.T) {
	d, registry := newTestDispatcher(t)

	var got []Event
	registry.Add(NewEventHandler(func(ev Event) { got = append(got, ev) }))

	d.Post(Event{Kind: EventSpeechBegin, SessionID: "s1"})
	d.Flush()

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
}

func TestDispatcherClose(t *testing.T) {
	registry := NewRegistry()
	l := &recordingListener{}
	registry.Add(l)
	d := NewDispatcher(registry, logging.Discard().WithField("test", t.Name()))

	d.Post(Event{Kind: EventTimeout})
	d.Close()
	assert.Equal(t, []EventKind{EventTimeout}, l.Kinds())

	// posting and flushing after close are no-ops
	d.Post(Event{Kind: EventFinal})
	d.Flush()
	d.Close()
	assert.Len(t, l.Kinds(), 1)
}

func TestListenerFuncsNilSafe(t *testing.T) {
	f := &ListenerFuncs{}
	assert.NotPanics(t, func() {
		f.OnBeginningOfSpeech()
		f.OnEndOfSpeech()
		f.OnPartialResult(nil)
		f.OnResult(nil)
		f.OnTimeout()
		f.OnError(nil)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b := &recordingListener{}, &recordingListener{}

	r.Add(a)
	r.Add(a)
	r.Add(b)
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains(a))

	snap := r.Snapshot()
	r.Remove(a)
	assert.False(t, r.Contains(a))
	assert.Equal(t, []Listener{b}, r.Snapshot())
	assert.Equal(t, []Listener{a, b}, snap)

	r.Remove(a)
	assert.Equal(t, 1, r.Len())
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Kind:        EventFinal,
		SessionID:   "s1",
		UtteranceID: "u1",
		Hypothesis:  &stt.Hypothesis{Text: "go forward", Score: -1200, Confidence: 0.5},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "result", decoded["kind"])
	assert.Equal(t, "s1", decoded["session_id"])
	assert.Equal(t, "u1", decoded["utterance_id"])
	assert.Equal(t, "go forward", decoded["text"])
	assert.Equal(t, float64(-1200), decoded["score"])
	assert.NotContains(t, decoded, "error")

	data, err = json.Marshal(Event{Kind: EventError, Err: &FaultError{Phase: PhaseStartup, Err: errors.New("busy")}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded["kind"])
	assert.Equal(t, "recognition startup fault: busy", decoded["error"])
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "speech_begin", EventSpeechBegin.String())
	assert.Equal(t, "timeout", EventTimeout.String())
	assert.Equal(t, "unknown", EventKind(42).String())
	assert.Equal(t, "go forward", Event{Hypothesis: &stt.Hypothesis{Text: "go forward"}}.Text())
	assert.Equal(t, "", Event{}.Text())
}

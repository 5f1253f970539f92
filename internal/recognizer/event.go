package recognizer

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/emmett/sphinxvox/internal/stt"
)

// EventKind identifies which listener callback an event maps to
type EventKind int

const (
	EventSpeechBegin EventKind = iota + 1
	EventSpeechEnd
	EventPartial
	EventFinal
	EventTimeout
	EventError
)

var eventKindNames = map[EventKind]string{
	EventSpeechBegin: "speech_begin",
	EventSpeechEnd:   "speech_end",
	EventPartial:     "partial",
	EventFinal:       "result",
	EventTimeout:     "timeout",
	EventError:       "error",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets the kind appear by name in JSON and logs
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one notification produced by a recognition worker
type Event struct {
	Kind        EventKind
	SessionID   string
	UtteranceID string

	// Hypothesis is set for Partial and Final; Final may carry nil
	Hypothesis *stt.Hypothesis

	// Err is set for Error events
	Err error

	Time time.Time
}

// Text returns the hypothesis text, or "" if there is none
func (e Event) Text() string {
	if e.Hypothesis == nil {
		return ""
	}
	return e.Hypothesis.Text
}

type eventJSON struct {
	Kind        EventKind `json:"kind"`
	SessionID   string    `json:"session_id"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	Score       int32     `json:"score,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// MarshalJSON renders the event as a flat object
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Kind:        e.Kind,
		SessionID:   e.SessionID,
		UtteranceID: e.UtteranceID,
		Timestamp:   e.Time,
	}
	if e.Hypothesis != nil {
		out.Text = e.Hypothesis.Text
		out.Score = e.Hypothesis.Score
		out.Confidence = e.Hypothesis.Confidence
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

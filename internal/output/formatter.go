package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

// Output formats accepted by NewFormatter
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatText    = "text"
)

// TranscriptionResult represents a single recognition result
type TranscriptionResult struct {
	Index       int       `json:"index"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Text        string    `json:"text"`
	Score       int32     `json:"score,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Partial     bool      `json:"partial"`
}

// Event represents a non-result notification
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Formatter is the interface for output formatters
type Formatter interface {
	// WriteResult writes a final recognition result
	WriteResult(result TranscriptionResult) error

	// WritePartial writes a partial (in-progress) hypothesis
	WritePartial(text string) error

	// WriteEvent writes a notification such as speech begin or timeout
	WriteEvent(eventType, message string) error

	// Flush ensures all buffered output is written
	Flush() error

	// Close closes the formatter and releases resources
	Close() error
}

// NewFormatter returns the formatter for format
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatConsole, "":
		return NewConsoleOutput(ConsoleConfig{ShowTimestamp: true, ShowMetadata: true, Writer: w}), nil
	case FormatJSON:
		return NewJSONFormatter(w), nil
	case FormatText:
		return NewPlainTextFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	results []TranscriptionResult
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	return &JSONFormatter{
		encoder: json.NewEncoder(writer),
	}
}

// WriteResult writes a result and keeps it for GetResults
func (j *JSONFormatter) WriteResult(result TranscriptionResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !result.Partial {
		j.results = append(j.results, result)
	}
	return j.encoder.Encode(result)
}

// WritePartial writes a partial result
func (j *JSONFormatter) WritePartial(text string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.encoder.Encode(TranscriptionResult{
		Text:      text,
		Timestamp: time.Now(),
		Partial:   true,
	})
}

// WriteEvent writes a notification
func (j *JSONFormatter) WriteEvent(eventType, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.encoder.Encode(Event{
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// Flush is a no-op; the encoder writes immediately
func (j *JSONFormatter) Flush() error {
	return nil
}

func (j *JSONFormatter) Close() error {
	return nil
}

// GetResults returns all final results written so far
func (j *JSONFormatter) GetResults() []TranscriptionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]TranscriptionResult(nil), j.results...)
}

// PlainTextFormatter writes final results as timestamped lines
type PlainTextFormatter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewPlainTextFormatter creates a new plain text formatter
func NewPlainTextFormatter(writer io.Writer) *PlainTextFormatter {
	return &PlainTextFormatter{
		writer: writer,
	}
}

// WriteResult writes a final result; partials are skipped
func (p *PlainTextFormatter) WriteResult(result TranscriptionResult) error {
	if result.Partial {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := fmt.Fprintf(p.writer, "[%s] %s\n", result.Timestamp.Format("15:04:05"), result.Text)
	return err
}

// WritePartial is a no-op for plain text
func (p *PlainTextFormatter) WritePartial(text string) error {
	return nil
}

// WriteEvent writes a notification line
func (p *PlainTextFormatter) WriteEvent(eventType, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("[%s] [%s]", time.Now().Format("15:04:05"), eventType)
	if message != "" {
		line += " " + message
	}
	_, err := fmt.Fprintln(p.writer, line)
	return err
}

func (p *PlainTextFormatter) Flush() error {
	return nil
}

func (p *PlainTextFormatter) Close() error {
	return nil
}

// Listener writes session events through a Formatter
type Listener struct {
	formatter Formatter

	// index is only touched on the dispatcher goroutine
	index int
}

// NewListener adapts f into a recognizer listener
func NewListener(f Formatter) *Listener {
	return &Listener{formatter: f}
}

// OnEvent implements recognizer.EventListener
func (l *Listener) OnEvent(ev recognizer.Event) {
	_ = l.write(ev)
}

func (l *Listener) write(ev recognizer.Event) error {
	switch ev.Kind {
	case recognizer.EventPartial:
		return l.formatter.WritePartial(ev.Text())
	case recognizer.EventFinal:
		l.index++
		result := TranscriptionResult{
			Index:       l.index,
			UtteranceID: ev.UtteranceID,
			Text:        ev.Text(),
			Timestamp:   ev.Time,
		}
		if ev.Hypothesis != nil {
			result.Score = ev.Hypothesis.Score
			result.Confidence = ev.Hypothesis.Confidence
		}
		return l.formatter.WriteResult(result)
	case recognizer.EventError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return l.formatter.WriteEvent(ev.Kind.String(), msg)
	default:
		return l.formatter.WriteEvent(ev.Kind.String(), "")
	}
}

func (l *Listener) OnBeginningOfSpeech() {}
func (l *Listener) OnEndOfSpeech()       {}
func (l *Listener) OnTimeout()           {}
func (l *Listener) OnError(error)        {}

func (l *Listener) OnPartialResult(*stt.Hypothesis) {}
func (l *Listener) OnResult(*stt.Hypothesis)        {}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/output"
	"github.com/emmett/sphinxvox/internal/recognizer"
)

// TranscriberConfig holds configuration for the listen loop
type TranscriberConfig struct {
	Search       string
	TimeoutMs    int
	OutputFormat string
	OutputFile   string

	// Continuous restarts listening after a no-speech timeout
	Continuous bool
}

// Transcriber runs a session until interrupted and prints what it hears
type Transcriber struct {
	config TranscriberConfig
	status *output.ConsoleOutput
}

// NewTranscriber creates a new Transcriber instance
func NewTranscriber(config TranscriberConfig) *Transcriber {
	return &Transcriber{config: config}
}

// openFormatter returns the result formatter and a func that releases it
func openFormatter(format, file string) (output.Formatter, func(), error) {
	var writer io.Writer = os.Stdout
	var outFile *os.File
	if file != "" {
		var err error
		outFile, err = os.Create(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		writer = outFile
	}

	formatter, err := output.NewFormatter(format, writer)
	if err != nil {
		if outFile != nil {
			outFile.Close()
		}
		return nil, nil, err
	}
	return formatter, func() {
		formatter.Close()
		if outFile != nil {
			outFile.Close()
		}
	}, nil
}

// statusOutput writes status lines to stderr when results go to a file
func statusOutput(outputFile string) *output.ConsoleOutput {
	if outputFile == "" {
		return output.DefaultConsoleOutput()
	}
	return output.NewConsoleOutput(output.ConsoleConfig{ShowTimestamp: true, Writer: os.Stderr})
}

// Run listens until ctx ends or the session stops for good
func (t *Transcriber) Run(ctx context.Context, rt *Runtime) error {
	formatter, release, err := openFormatter(t.config.OutputFormat, t.config.OutputFile)
	if err != nil {
		return err
	}
	defer release()

	results := output.NewListener(formatter)
	rt.Session.AddListener(results)
	defer rt.Session.RemoveListener(results)

	exits := newExitWatcher()
	rt.Session.AddListener(exits)
	defer rt.Session.RemoveListener(exits)

	t.status = statusOutput(t.config.OutputFile)
	t.status.Info(fmt.Sprintf("Listening at %d Hz (source: %s, engine: %s)",
		rt.Session.SampleRate(), rt.Config.Audio.Source, rt.Config.Decoder.Engine))
	t.status.Info("Speak into your microphone. Press Ctrl+C to stop.")

	for {
		exits.reset()
		if _, err := rt.Session.StartListeningTimeout(t.config.Search, control.Timeout(t.config.TimeoutMs)); err != nil {
			return fmt.Errorf("failed to start listening: %w", err)
		}

		if err := rt.Session.Wait(ctx); err != nil {
			rt.Session.Stop()
			rt.Session.Flush()
			t.status.Info("Recognition stopped")
			return nil
		}

		// the worker ended on its own; reap it so its final result is delivered
		rt.Session.Stop()
		rt.Session.Flush()

		switch kind, cause := exits.last(); {
		case kind == recognizer.EventError:
			return cause
		case kind == recognizer.EventTimeout && t.config.Continuous:
			t.status.Status("No speech, listening again")
			continue
		case kind == recognizer.EventTimeout:
			t.status.Info("No speech before timeout")
			return nil
		default:
			t.status.Info("Input ended")
			return nil
		}
	}
}

// exitWatcher remembers the terminal event of the current run
type exitWatcher struct {
	*recognizer.EventHandler

	mu    sync.Mutex
	kind  recognizer.EventKind
	cause error
}

func newExitWatcher() *exitWatcher {
	w := &exitWatcher{}
	w.EventHandler = recognizer.NewEventHandler(w.observe)
	return w
}

func (w *exitWatcher) observe(ev recognizer.Event) {
	if ev.Kind != recognizer.EventTimeout && ev.Kind != recognizer.EventError {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.kind = ev.Kind
	w.cause = ev.Err
	if w.cause == nil && ev.Kind == recognizer.EventError {
		w.cause = errors.New("recognition failed")
	}
}

func (w *exitWatcher) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.kind = 0
	w.cause = nil
}

func (w *exitWatcher) last() (recognizer.EventKind, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kind, w.cause
}

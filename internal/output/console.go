package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleOutput writes results for a human watching a terminal
type ConsoleOutput struct {
	mu            sync.Mutex
	writer        io.Writer
	errWriter     io.Writer
	showTimestamp bool
	showMetadata  bool
	partialOpen   bool
}

// ConsoleConfig configures console output behavior
type ConsoleConfig struct {
	// ShowTimestamp prefixes each line with a timestamp
	ShowTimestamp bool

	// ShowMetadata displays additional metadata (score, confidence)
	ShowMetadata bool

	// Writer is the output destination (default: os.Stdout)
	Writer io.Writer

	// ErrWriter receives Error messages (default: os.Stderr)
	ErrWriter io.Writer
}

// NewConsoleOutput creates a new console output handler
func NewConsoleOutput(config ConsoleConfig) *ConsoleOutput {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}
	errWriter := config.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	return &ConsoleOutput{
		writer:        writer,
		errWriter:     errWriter,
		showTimestamp: config.ShowTimestamp,
		showMetadata:  config.ShowMetadata,
	}
}

// DefaultConsoleOutput creates a console output with default settings
func DefaultConsoleOutput() *ConsoleOutput {
	return NewConsoleOutput(ConsoleConfig{ShowTimestamp: true})
}

// Write writes a line of text
func (c *ConsoleOutput) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endPartialLocked()
	fmt.Fprintf(c.writer, "%s%s\n", c.timestampLocked(), text)
	return nil
}

// WriteResult implements Formatter
func (c *ConsoleOutput) WriteResult(result TranscriptionResult) error {
	if result.Partial {
		return c.WritePartial(result.Text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.endPartialLocked()
	text := result.Text
	if text == "" {
		text = "(no speech recognized)"
	}
	metadata := ""
	if c.showMetadata {
		metadata = fmt.Sprintf(" (score: %d, confidence: %.2f)", result.Score, result.Confidence)
	}
	fmt.Fprintf(c.writer, "%s%s%s\n", c.timestampLocked(), text, metadata)
	return nil
}

// WritePartial overwrites the current line with an in-progress hypothesis
func (c *ConsoleOutput) WritePartial(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r%s", text)
	c.partialOpen = true
	return nil
}

// WriteEvent writes a notification line
func (c *ConsoleOutput) WriteEvent(eventType, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endPartialLocked()
	if message == "" {
		fmt.Fprintf(c.writer, "[%s]\n", eventType)
	} else {
		fmt.Fprintf(c.writer, "[%s] %s\n", eventType, message)
	}
	return nil
}

// Finalize ends a pending partial line
func (c *ConsoleOutput) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endPartialLocked()
	return nil
}

func (c *ConsoleOutput) Flush() error { return c.Finalize() }
func (c *ConsoleOutput) Close() error { return c.Finalize() }

func (c *ConsoleOutput) endPartialLocked() {
	if c.partialOpen {
		fmt.Fprintln(c.writer)
		c.partialOpen = false
	}
}

func (c *ConsoleOutput) timestampLocked() string {
	if !c.showTimestamp {
		return ""
	}
	return fmt.Sprintf("[%s] ", time.Now().Format("15:04:05"))
}

// Info writes an informational message
func (c *ConsoleOutput) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endPartialLocked()
	fmt.Fprintf(c.writer, "[INFO] %s\n", msg)
}

// Error writes an error message to the error writer
func (c *ConsoleOutput) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.errWriter, "[ERROR] %s\n", msg)
}

// Status writes a status message (typically overwritten)
func (c *ConsoleOutput) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r[*] %s", msg)
	c.partialOpen = true
}

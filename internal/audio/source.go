package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRecording is returned by Read on a source that was never started
	ErrNotRecording = errors.New("audio source is not recording")

	// ErrUnsupportedFormat is returned for input that is not 16-bit mono PCM at the requested rate
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Source kinds accepted by NewSource
const (
	SourcePortAudio = "portaudio"
	SourceMalgo     = "malgo"
	SourceWAV       = "wav"
)

// Source delivers 16-bit mono PCM at a fixed rate.
// Start and Stop may be called repeatedly; Close releases the device for good.
type Source interface {
	// Start opens the device and begins capture
	Start() error

	// Read copies up to len(buf) samples into buf.
	// A return of (0, nil) means nothing was ready; io.EOF ends finite input.
	Read(buf []int16) (int, error)

	// Stop halts capture. Samples already captured may still be read.
	Stop() error

	// IsRecording reports whether capture is active
	IsRecording() bool

	// Close releases the source
	Close() error
}

// SourceConfig holds configuration for an audio source
type SourceConfig struct {
	// SampleRate is the number of samples per second (Hz)
	SampleRate int

	// FramesPerBuffer is the device period in samples.
	// Zero picks 100ms at SampleRate.
	FramesPerBuffer int

	// BufferSeconds sizes the capture ring buffer for callback sources
	BufferSeconds float64

	// Device selects a capture device by (partial) name. Empty means default.
	Device string

	// File is the WAV file read by the wav source
	File string
}

func (c SourceConfig) framesPerBuffer() int {
	if c.FramesPerBuffer > 0 {
		return c.FramesPerBuffer
	}
	return c.SampleRate / 10
}

func (c SourceConfig) ringSamples() int {
	seconds := c.BufferSeconds
	if seconds < 1 {
		seconds = 1
	}
	return int(float64(c.SampleRate) * seconds * 2)
}

// NewSource creates a source of the given kind
func NewSource(kind string, config SourceConfig) (Source, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", config.SampleRate)
	}

	switch kind {
	case SourcePortAudio, "":
		return NewPortAudioSource(config), nil
	case SourceMalgo:
		return NewMalgoSource(config), nil
	case SourceWAV:
		if config.File == "" {
			return nil, fmt.Errorf("wav source requires a file")
		}
		return NewWAVSource(config), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", kind)
	}
}

package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a 16-bit mono WAV file as if it were a microphone
type WAVSource struct {
	config SourceConfig

	mu      sync.Mutex
	file    *os.File
	decoder *wav.Decoder
	pcm     *goaudio.IntBuffer
	running bool
	eof     bool
}

// NewWAVSource creates a source over config.File
func NewWAVSource(config SourceConfig) *WAVSource {
	return &WAVSource{config: config}
}

// Start opens the file and checks its format. Every Start rewinds to the beginning.
func (w *WAVSource) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("source is already running")
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	f, err := os.Open(w.config.File)
	if err != nil {
		return fmt.Errorf("failed to open wav file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s is not a valid wav file", ErrUnsupportedFormat, w.config.File)
	}
	if decoder.NumChans != 1 || decoder.BitDepth != 16 {
		f.Close()
		return fmt.Errorf("%w: %s has %d channels at %d bits, want mono 16-bit",
			ErrUnsupportedFormat, w.config.File, decoder.NumChans, decoder.BitDepth)
	}
	if int(decoder.SampleRate) != w.config.SampleRate {
		f.Close()
		return fmt.Errorf("%w: %s is %d Hz, want %d Hz",
			ErrUnsupportedFormat, w.config.File, decoder.SampleRate, w.config.SampleRate)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return fmt.Errorf("failed to seek to pcm data: %w", err)
	}

	w.file = f
	w.decoder = decoder
	w.running = true
	w.eof = false
	return nil
}

// Read decodes the next samples; io.EOF marks the end of the file
func (w *WAVSource) Read(buf []int16) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.decoder == nil {
		return 0, ErrNotRecording
	}
	if w.eof {
		return 0, io.EOF
	}

	if w.pcm == nil || cap(w.pcm.Data) < len(buf) {
		w.pcm = &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: 1, SampleRate: w.config.SampleRate},
			Data:   make([]int, len(buf)),
		}
	}
	w.pcm.Data = w.pcm.Data[:len(buf)]

	n, err := w.decoder.PCMBuffer(w.pcm)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("failed to decode wav: %w", err)
	}
	if n == 0 {
		w.eof = true
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		buf[i] = int16(w.pcm.Data[i])
	}
	return n, nil
}

// Stop marks the source stopped. Remaining samples stay readable until Close.
func (w *WAVSource) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	return nil
}

func (w *WAVSource) IsRecording() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Close releases the file
func (w *WAVSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = false
	w.decoder = nil
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

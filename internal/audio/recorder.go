package audio

import (
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// UtteranceRecorder writes one utterance as a 16-bit mono WAV file
type UtteranceRecorder struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer
	samples int
}

// NewUtteranceRecorder creates <dir>/<name>.wav
func NewUtteranceRecorder(dir, name string, sampleRate int) (*UtteranceRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create raw log dir: %w", err)
	}

	path := filepath.Join(dir, name+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create utterance file: %w", err)
	}

	return &UtteranceRecorder{
		path:    path,
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Write appends samples to the file
func (r *UtteranceRecorder) Write(samples []int16) error {
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(s)
	}

	if err := r.encoder.Write(r.buf); err != nil {
		return fmt.Errorf("failed to write utterance audio: %w", err)
	}
	r.samples += len(samples)
	return nil
}

// Path returns the file being written
func (r *UtteranceRecorder) Path() string { return r.path }

// Samples returns how many samples were written
func (r *UtteranceRecorder) Samples() int { return r.samples }

// Close finalizes the WAV header and closes the file
func (r *UtteranceRecorder) Close() error {
	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize utterance file: %w", encErr)
	}
	return fileErr
}

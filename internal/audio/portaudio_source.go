package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource reads from a blocking PortAudio input stream
type PortAudioSource struct {
	config SourceConfig

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	queue   []int16
	running bool
}

// NewPortAudioSource creates a PortAudio source; nothing is opened until Start
func NewPortAudioSource(config SourceConfig) *PortAudioSource {
	return &PortAudioSource{config: config}
}

// Start initializes PortAudio and opens the input stream
func (p *PortAudioSource) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("source is already running")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	p.buf = make([]int16, p.config.framesPerBuffer())
	stream, err := p.open()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	p.stream = stream
	p.queue = nil
	p.running = true
	return nil
}

func (p *PortAudioSource) open() (*portaudio.Stream, error) {
	rate := float64(p.config.SampleRate)

	if p.config.Device == "" {
		stream, err := portaudio.OpenDefaultStream(1, 0, rate, len(p.buf), p.buf)
		if err != nil {
			return nil, fmt.Errorf("failed to open default stream: %w", err)
		}
		return stream, nil
	}

	device, err := findPortAudioDevice(p.config.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = rate
	params.FramesPerBuffer = len(p.buf)

	stream, err := portaudio.OpenStream(params, p.buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream on %s: %w", device.Name, err)
	}
	return stream, nil
}

// Read returns queued samples first, then blocks for one device period
func (p *PortAudioSource) Read(buf []int16) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		if !p.running {
			return 0, nil
		}
		if err := p.stream.Read(); err != nil {
			return 0, fmt.Errorf("failed to read stream: %w", err)
		}
		p.queue = append(p.queue[:0], p.buf...)
	}

	n := copy(buf, p.queue)
	p.queue = p.queue[n:]
	return n, nil
}

// Stop stops and closes the stream
func (p *PortAudioSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	var stopErr error
	if err := p.stream.Stop(); err != nil {
		stopErr = fmt.Errorf("failed to stop stream: %w", err)
	}
	if err := p.stream.Close(); err != nil && stopErr == nil {
		stopErr = fmt.Errorf("failed to close stream: %w", err)
	}
	p.stream = nil
	portaudio.Terminate()
	return stopErr
}

func (p *PortAudioSource) IsRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PortAudioSource) Close() error {
	return p.Stop()
}

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// readWait bounds how long Read blocks so callers can poll for interruption
const readWait = 100 * time.Millisecond

// MalgoSource captures from a miniaudio device into a ring buffer
type MalgoSource struct {
	config       SourceConfig
	ring         *RingBuffer
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext

	mu      sync.RWMutex
	running bool
	ready   chan struct{}
	dropped int
}

// NewMalgoSource creates a new malgo-based audio source
func NewMalgoSource(config SourceConfig) *MalgoSource {
	return &MalgoSource{
		config: config,
		ring:   NewRingBuffer(config.ringSamples()),
		ready:  make(chan struct{}, 1),
	}
}

// Start begins audio capture
func (m *MalgoSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("source is already running")
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(m.config.framesPerBuffer())

	if m.config.Device != "" {
		info, err := findMalgoDevice(malgoCtx, m.config.Device)
		if err != nil {
			_ = malgoCtx.Uninit()
			malgoCtx.Free()
			return err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: m.onData,
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("failed to initialize device: %w", err)
	}

	m.ring.Reset()
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.malgoContext = malgoCtx
	m.running = true
	m.dropped = 0
	return nil
}

// onData is the device callback; it runs on a miniaudio thread
func (m *MalgoSource) onData(_, input []byte, _ uint32) {
	samples := make([]int16, len(input)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
	}

	if n, err := m.ring.Write(samples); err != nil {
		m.mu.Lock()
		m.dropped += len(samples) - n
		m.mu.Unlock()
	}

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Read blocks briefly for data. After Stop it drains what was captured.
func (m *MalgoSource) Read(buf []int16) (int, error) {
	if n := m.ring.Read(buf); n > 0 {
		return n, nil
	}
	if !m.IsRecording() {
		return 0, nil
	}

	select {
	case <-m.ready:
	case <-time.After(readWait):
	}
	return m.ring.Read(buf), nil
}

// Stop stops audio capture
func (m *MalgoSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	var stopErr error
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			stopErr = fmt.Errorf("failed to stop device: %w", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoContext != nil {
		_ = m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.malgoContext = nil
	}

	return stopErr
}

// IsRecording returns true if capture is currently active
func (m *MalgoSource) IsRecording() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Dropped returns the number of samples lost to a full buffer since Start
func (m *MalgoSource) Dropped() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

func (m *MalgoSource) Close() error {
	return m.Stop()
}

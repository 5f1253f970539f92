package audio

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/gordonklaus/portaudio"
)

// DeviceInfo contains information about a capture device
type DeviceInfo struct {
	ID          string  // Backend-scoped identifier
	Name        string  // Human-readable device name
	Backend     string  // "malgo" or "portaudio"
	IsDefault   bool    // Whether this is the default input
	MaxChannels int     // Maximum number of input channels, 0 if unknown
	DefaultRate float64 // Default sample rate, 0 if unknown
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	defaultMarker := ""
	if d.IsDefault {
		defaultMarker = " [DEFAULT]"
	}
	return fmt.Sprintf("%s: %s%s (backend: %s, channels: %d, rate: %.0f)",
		d.ID, d.Name, defaultMarker, d.Backend, d.MaxChannels, d.DefaultRate)
}

// ListDevices returns the capture devices miniaudio can see
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:        fmt.Sprintf("capture-%d", i),
			Name:      info.Name(),
			Backend:   SourceMalgo,
			IsDefault: info.IsDefault > 0,
		})
	}

	return devices, nil
}

// ListPortAudioDevices returns the PortAudio devices that have inputs
func ListPortAudioDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var devices []DeviceInfo
	for i, info := range infos {
		if info.MaxInputChannels == 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			ID:          fmt.Sprintf("pa-%d", i),
			Name:        info.Name,
			Backend:     SourcePortAudio,
			IsDefault:   def != nil && def.Name == info.Name,
			MaxChannels: info.MaxInputChannels,
			DefaultRate: info.DefaultSampleRate,
		})
	}
	return devices, nil
}

// ListAllDevices merges both backends; a failing backend is skipped
func ListAllDevices() ([]DeviceInfo, error) {
	var (
		all     []DeviceInfo
		lastErr error
	)
	for _, list := range []func() ([]DeviceInfo, error){ListPortAudioDevices, ListDevices} {
		devices, err := list()
		if err != nil {
			lastErr = err
			continue
		}
		all = append(all, devices...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// FindDevice returns the first device whose ID matches or whose name
// contains name (case-insensitive)
func FindDevice(devices []DeviceInfo, name string) (*DeviceInfo, error) {
	for i := range devices {
		if devices[i].ID == name {
			return &devices[i], nil
		}
	}
	searchName := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), searchName) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no device found matching name: %s", name)
}

// DefaultDevice returns the default device, or the first one
func DefaultDevice(devices []DeviceInfo) (*DeviceInfo, error) {
	for i := range devices {
		if devices[i].IsDefault {
			return &devices[i], nil
		}
	}
	if len(devices) > 0 {
		return &devices[0], nil
	}
	return nil, fmt.Errorf("no capture devices found")
}

func findMalgoDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	searchName := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), searchName) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("no device found matching name: %s", name)
}

// findPortAudioDevice expects portaudio to be initialized
func findPortAudioDevice(name string) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	searchName := strings.ToLower(name)
	for _, info := range infos {
		if info.MaxInputChannels > 0 && strings.Contains(strings.ToLower(info.Name), searchName) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("no device found matching name: %s", name)
}

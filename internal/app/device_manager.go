package app

import (
	"fmt"
	"io"
	"os"

	"github.com/emmett/sphinxvox/internal/audio"
)

// DeviceManager handles audio device selection and listing
type DeviceManager struct {
	out  io.Writer
	list func() ([]audio.DeviceInfo, error)
}

// NewDeviceManager creates a new DeviceManager over every capture backend
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{out: os.Stdout, list: audio.ListAllDevices}
}

// ListDevices prints all available audio input devices
func (dm *DeviceManager) ListDevices() error {
	fmt.Fprintln(dm.out, "Detecting audio input devices...")
	fmt.Fprintln(dm.out)

	devices, err := dm.list()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(dm.out, "No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Fprintf(dm.out, "Found %d capture device(s):\n\n", len(devices))
	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(dm.out, "%d. %s%s\n", i+1, device.Name, marker)
		fmt.Fprintf(dm.out, "   ID:      %s\n", device.ID)
		fmt.Fprintf(dm.out, "   Backend: %s\n", device.Backend)
		if device.MaxChannels > 0 {
			fmt.Fprintf(dm.out, "   Max Channels: %d\n", device.MaxChannels)
		}
		if device.DefaultRate > 0 {
			fmt.Fprintf(dm.out, "   Default Rate: %.0f Hz\n", device.DefaultRate)
		}
		fmt.Fprintln(dm.out)
	}

	fmt.Fprintln(dm.out, "To use a specific device, run:")
	fmt.Fprintf(dm.out, "  sphinxvox --device \"%s\"\n", devices[0].Name)
	return nil
}

// SelectDevice finds a device by ID or partial name, or the default one
func (dm *DeviceManager) SelectDevice(deviceName string) (*audio.DeviceInfo, error) {
	devices, err := dm.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if deviceName == "" {
		return audio.DefaultDevice(devices)
	}

	device, err := audio.FindDevice(devices, deviceName)
	if err != nil {
		fmt.Fprintf(dm.out, "Device '%s' not found. Available devices:\n", deviceName)
		for i, d := range devices {
			fmt.Fprintf(dm.out, "  %d. %s\n", i+1, d.String())
		}
		return nil, fmt.Errorf("invalid audio device specified: %w", err)
	}
	return device, nil
}

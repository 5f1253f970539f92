// Package input binds a global hotkey to a listen toggle.
package input

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.design/x/hotkey"

	"github.com/emmett/sphinxvox/internal/logging"
)

// Toggle flips between listening and idle on each key press
type Toggle struct {
	mu     sync.Mutex
	hk     *hotkey.Hotkey
	active bool
	onFlip func(active bool) error
	logger *logrus.Entry
	cancel context.CancelFunc
	done   chan struct{}
}

// NewToggle creates a toggle. onFlip runs with the new state; if it fails
// the state is rolled back so the next press retries.
func NewToggle(onFlip func(active bool) error, logger *logrus.Logger) *Toggle {
	return &Toggle{
		onFlip: onFlip,
		logger: logging.OrDiscard(logger).WithField("component", "hotkey"),
		done:   make(chan struct{}),
	}
}

// Start registers binding and handles presses until ctx ends or Stop
func (t *Toggle) Start(ctx context.Context, binding string) error {
	mods, key, err := ParseBinding(binding)
	if err != nil {
		return fmt.Errorf("invalid hotkey: %w", err)
	}

	t.hk = hotkey.New(mods, key)
	if err := t.hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}
	t.logger.WithField("binding", binding).Info("Hotkey registered")

	ctx, t.cancel = context.WithCancel(ctx)

	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-t.hk.Keydown():
				if !ok {
					return
				}
				t.Press()
			}
		}
	}()

	return nil
}

// Press flips the state as if the hotkey was pressed
func (t *Toggle) Press() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := !t.active
	if t.onFlip != nil {
		if err := t.onFlip(next); err != nil {
			t.logger.WithError(err).WithField("active", next).Warn("Hotkey toggle failed")
			return t.active
		}
	}
	t.active = next
	return next
}

// Reset forces the idle state without calling onFlip, for sessions that
// ended on their own
func (t *Toggle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

// Stop unregisters the hotkey
func (t *Toggle) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.hk != nil {
		t.hk.Unregister()
	}
	if t.cancel != nil {
		select {
		case <-t.done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// IsActive returns the current toggle state
func (t *Toggle) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
	"0":      hotkey.Key0,
	"1":      hotkey.Key1,
	"2":      hotkey.Key2,
	"3":      hotkey.Key3,
	"4":      hotkey.Key4,
	"5":      hotkey.Key5,
	"6":      hotkey.Key6,
	"7":      hotkey.Key7,
	"8":      hotkey.Key8,
	"9":      hotkey.Key9,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}

// modifierFor maps a modifier name to the platform modifier
func modifierFor(name string) (hotkey.Modifier, bool) {
	switch name {
	case "ctrl", "control":
		return hotkey.ModCtrl, true
	case "shift":
		return hotkey.ModShift, true
	}
	mod, ok := platformModifiers[name]
	return mod, ok
}

// ParseBinding parses "ctrl+shift+space" style bindings
func ParseBinding(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	if strings.TrimSpace(s) == "" {
		return nil, 0, fmt.Errorf("empty hotkey string")
	}

	var (
		mods     []hotkey.Modifier
		key      hotkey.Key
		keyFound bool
	)
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		if mod, ok := modifierFor(part); ok {
			mods = append(mods, mod)
			continue
		}
		if keyFound {
			return nil, 0, fmt.Errorf("multiple keys specified")
		}
		k, ok := namedKeys[part]
		if !ok {
			return nil, 0, fmt.Errorf("unknown key: %s", part)
		}
		key = k
		keyFound = true
	}

	if !keyFound {
		return nil, 0, fmt.Errorf("no key specified")
	}
	return mods, key, nil
}

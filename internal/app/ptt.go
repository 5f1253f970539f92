package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/input"
	"github.com/emmett/sphinxvox/internal/output"
	"github.com/emmett/sphinxvox/internal/recognizer"
)

// PTTConfig holds configuration for push-to-talk mode
type PTTConfig struct {
	TranscriberConfig
	Hotkey string
}

// PTTTranscriber toggles listening with a global hotkey
type PTTTranscriber struct {
	config PTTConfig
	logger *logrus.Logger
}

// NewPTTTranscriber creates a new PTTTranscriber
func NewPTTTranscriber(config PTTConfig, logger *logrus.Logger) *PTTTranscriber {
	return &PTTTranscriber{config: config, logger: logger}
}

// Run handles hotkey presses until ctx ends
func (p *PTTTranscriber) Run(ctx context.Context, rt *Runtime) error {
	formatter, release, err := openFormatter(p.config.OutputFormat, p.config.OutputFile)
	if err != nil {
		return err
	}
	defer release()

	results := output.NewListener(formatter)
	rt.Session.AddListener(results)
	defer rt.Session.RemoveListener(results)

	status := statusOutput(p.config.OutputFile)

	var toggle *input.Toggle
	toggle = input.NewToggle(func(active bool) error {
		if !active {
			rt.Session.Stop()
			status.Status("Stopped")
			return nil
		}

		started, err := rt.Session.StartListeningTimeout(p.config.Search, control.Timeout(p.config.TimeoutMs))
		if err != nil {
			return err
		}
		if !started {
			return errors.New("already listening")
		}
		status.Status("Recording")
		go p.watch(ctx, rt.Session, toggle)
		return nil
	}, p.logger)

	if err := toggle.Start(ctx, p.config.Hotkey); err != nil {
		return fmt.Errorf("failed to start hotkey listener: %w", err)
	}
	defer toggle.Stop()

	status.Info(fmt.Sprintf("Push-to-talk mode. Press %s to toggle recording.", p.config.Hotkey))
	status.Info("Press Ctrl+C to exit.")

	<-ctx.Done()
	rt.Session.Stop()
	rt.Session.Flush()
	return nil
}

// watch resets the toggle when a run ends on its own (timeout, error, EOF)
func (p *PTTTranscriber) watch(ctx context.Context, session *recognizer.Session, toggle *input.Toggle) {
	if err := session.Wait(ctx); err != nil {
		return
	}
	if toggle.IsActive() && session.State() == recognizer.Idle {
		toggle.Reset()
		session.Stop()
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 16000.0, cfg.Decoder.SampleRate)
	assert.Equal(t, 0.4, cfg.Audio.BufferSeconds)
}

func TestValidateRejectsFractionalSampleRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decoder.SampleRate = 16000.5

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"unknown engine", func(c *Config) { c.Decoder.Engine = "whisper" }, false},
		{"unknown source", func(c *Config) { c.Audio.Source = "alsa" }, false},
		{"wav without file", func(c *Config) { c.Audio.Source = "wav" }, false},
		{"wav with file", func(c *Config) { c.Audio.Source = "wav"; c.Audio.File = "in.wav" }, true},
		{"zero buffer", func(c *Config) { c.Audio.BufferSeconds = 0 }, false},
		{"keyphrase without phrase", func(c *Config) {
			c.Searches = []SearchSettings{{Name: "wake", Type: "keyphrase"}}
		}, false},
		{"grammar with file", func(c *Config) {
			c.Searches = []SearchSettings{{Name: "menu", Type: "grammar", File: "menu.gram"}}
		}, true},
		{"unknown search type", func(c *Config) {
			c.Searches = []SearchSettings{{Name: "x", Type: "fst", File: "x"}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Decoder.Engine = "vosk"
	cfg.Decoder.Options["-beam"] = "1e-60"
	cfg.Searches = []SearchSettings{{Name: "wake", Type: "keyphrase", Phrase: "oh mighty computer"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "vosk", loaded.Decoder.Engine)
	assert.Equal(t, "1e-60", loaded.Decoder.Options["-beam"])
	require.Len(t, loaded.Searches, 1)
	assert.Equal(t, "oh mighty computer", loaded.Searches[0].Phrase)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  timeout_ms: 5000\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Session.TimeoutMs)
	assert.Equal(t, "sphinx", cfg.Decoder.Engine)
	assert.Equal(t, "default", cfg.Session.Search)
}

func TestLoadWithFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	old := systemConfigPath
	systemConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { systemConfigPath = old }()

	cfg, err := LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Decoder.Engine, cfg.Decoder.Engine)

	require.NoError(t, os.WriteFile(filepath.Join(home, ".sphinxvoxrc"), []byte("decoder:\n  engine: vosk\n"), 0644))
	cfg, err = LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, "vosk", cfg.Decoder.Engine)

	_, err = LoadWithFallback(filepath.Join(home, "nope.yaml"))
	assert.Error(t, err)
}

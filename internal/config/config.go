package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for any rejected setting
var ErrInvalidConfig = errors.New("invalid configuration")

// DecoderSettings configures the recognition engine
type DecoderSettings struct {
	// Engine selects the decoder: "sphinx" or "vosk"
	Engine string `yaml:"engine"`

	// AcousticModel is the -hmm directory (the model directory for vosk)
	AcousticModel string `yaml:"acoustic_model"`

	Dictionary    string `yaml:"dictionary"`
	LanguageModel string `yaml:"language_model"`

	// SampleRate must be an integral value even though it is read as a float
	SampleRate float64 `yaml:"sample_rate"`

	KeywordThreshold float64 `yaml:"keyword_threshold"`

	// RawLogDir receives one WAV file per utterance when set
	RawLogDir string `yaml:"raw_log_dir"`

	// OptionsFile is a pocketsphinx style "-key value" file applied first
	OptionsFile string `yaml:"options_file"`

	// Options holds extra decoder keys, e.g. {"-beam": "1e-60"}
	Options map[string]string `yaml:"options"`
}

// SearchSettings declares a named search installed at startup
type SearchSettings struct {
	Name string `yaml:"name"`

	// Type is one of: keyphrase, keyword, grammar, ngram, allphone
	Type string `yaml:"type"`

	// Phrase is used by keyphrase searches
	Phrase string `yaml:"phrase,omitempty"`

	// File is used by every other search type
	File string `yaml:"file,omitempty"`
}

// AudioSettings configures the audio source
type AudioSettings struct {
	// Source is one of: portaudio, malgo, wav
	Source string `yaml:"source"`
	Device string `yaml:"device"`

	// File is the input for the wav source
	File string `yaml:"file"`

	// BufferSeconds is the duration of one read frame
	BufferSeconds float64 `yaml:"buffer_seconds"`
}

// SessionSettings configures listening behavior
type SessionSettings struct {
	Search string `yaml:"search"`

	// TimeoutMs is the no-speech timeout; 0 or negative disables it
	TimeoutMs int `yaml:"timeout_ms"`
}

// VADSettings configures the energy VAD used by engines without native VAD
type VADSettings struct {
	Threshold float64 `yaml:"threshold"`
	SpeechMs  int     `yaml:"speech_ms"`
	SilenceMs int     `yaml:"silence_ms"`
}

// OutputSettings configures transcript output
type OutputSettings struct {
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// LogSettings configures the application logger
type LogSettings struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// ServerSettings configures the network surfaces
type ServerSettings struct {
	GRPCPort int    `yaml:"grpc_port"`
	HTTPAddr string `yaml:"http_addr"`
	MCPName  string `yaml:"mcp_name"`
}

// MQTTSettings configures the MQTT event sink
type MQTTSettings struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// NATSSettings configures the NATS event sink
type NATSSettings struct {
	Enabled  bool     `yaml:"enabled"`
	URLs     []string `yaml:"urls"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Subject  string   `yaml:"subject"`
}

// SinkSettings groups the event sinks
type SinkSettings struct {
	MQTT MQTTSettings `yaml:"mqtt"`
	NATS NATSSettings `yaml:"nats"`
}

// Config represents the application configuration
type Config struct {
	Decoder  DecoderSettings  `yaml:"decoder"`
	Searches []SearchSettings `yaml:"searches"`
	Audio    AudioSettings    `yaml:"audio"`
	Session  SessionSettings  `yaml:"session"`
	VAD      VADSettings      `yaml:"vad"`
	Output   OutputSettings   `yaml:"output"`
	Log      LogSettings      `yaml:"log"`
	Server   ServerSettings   `yaml:"server"`
	Sinks    SinkSettings     `yaml:"sinks"`

	// Model settings
	Model struct {
		Default string `yaml:"default"`
		Dir     string `yaml:"dir"`
	} `yaml:"model"`

	// Assets settings
	Assets struct {
		Source string `yaml:"source"`
		Dir    string `yaml:"dir"`
	} `yaml:"assets"`

	// Hotkey settings
	Hotkey struct {
		Binding string `yaml:"binding"`
	} `yaml:"hotkey"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Decoder.Engine = "sphinx"
	cfg.Decoder.SampleRate = 16000
	cfg.Decoder.Options = map[string]string{}

	cfg.Audio.Source = "portaudio"
	cfg.Audio.BufferSeconds = 0.4

	cfg.Session.Search = "default"
	cfg.Session.TimeoutMs = 0

	cfg.VAD.Threshold = 0.01
	cfg.VAD.SpeechMs = 100
	cfg.VAD.SilenceMs = 800

	cfg.Output.Format = "console"

	cfg.Log.Level = "info"
	cfg.Log.MaxSize = 20
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAge = 28

	cfg.Server.GRPCPort = 50051
	cfg.Server.HTTPAddr = "localhost:8080"
	cfg.Server.MCPName = "sphinxvox"

	cfg.Sinks.MQTT.ClientID = "sphinxvox"
	cfg.Sinks.MQTT.TopicPrefix = "sphinxvox"
	cfg.Sinks.NATS.Subject = "sphinxvox.events"

	cfg.Hotkey.Binding = "ctrl+shift+space"

	return cfg
}

// Validate checks settings that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	rate := c.Decoder.SampleRate
	if rate <= 0 || rate != math.Trunc(rate) {
		return fmt.Errorf("%w: decoder.sample_rate %v must be a positive whole number", ErrInvalidConfig, rate)
	}

	switch c.Decoder.Engine {
	case "sphinx", "vosk":
	default:
		return fmt.Errorf("%w: unknown decoder.engine %q (valid: sphinx, vosk)", ErrInvalidConfig, c.Decoder.Engine)
	}

	switch c.Audio.Source {
	case "portaudio", "malgo":
	case "wav":
		if c.Audio.File == "" {
			return fmt.Errorf("%w: audio.file is required for the wav source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown audio.source %q (valid: portaudio, malgo, wav)", ErrInvalidConfig, c.Audio.Source)
	}

	if c.Audio.BufferSeconds <= 0 {
		return fmt.Errorf("%w: audio.buffer_seconds must be positive", ErrInvalidConfig)
	}

	for _, s := range c.Searches {
		if s.Name == "" {
			return fmt.Errorf("%w: search without a name", ErrInvalidConfig)
		}
		switch s.Type {
		case "keyphrase":
			if s.Phrase == "" {
				return fmt.Errorf("%w: keyphrase search %q has no phrase", ErrInvalidConfig, s.Name)
			}
		case "keyword", "grammar", "ngram", "allphone":
			if s.File == "" {
				return fmt.Errorf("%w: %s search %q has no file", ErrInvalidConfig, s.Type, s.Name)
			}
		default:
			return fmt.Errorf("%w: search %q has unknown type %q", ErrInvalidConfig, s.Name, s.Type)
		}
	}

	return nil
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.sphinxvoxrc > /etc/sphinxvox/config.yaml
func LoadWithFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	for _, candidate := range fallbackPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if cfg, err := Load(candidate); err == nil {
			return cfg, nil
		}
	}

	return DefaultConfig(), nil
}

var systemConfigPath = "/etc/sphinxvox/config.yaml"

func fallbackPaths() []string {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".sphinxvoxrc"))
	}
	return append(paths, systemConfigPath)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

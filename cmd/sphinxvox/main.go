package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/app"
	"github.com/emmett/sphinxvox/internal/config"
	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

// CLI flags
var (
	configFile     = flag.String("config", "", "Path to configuration file (default: ~/.sphinxvoxrc or /etc/sphinxvox/config.yaml)")
	mode           = flag.String("mode", "cli", "Operation mode: cli, ptt, mcp")
	listModels     = flag.Bool("list-models", false, "List all available models for download")
	listDownloaded = flag.Bool("list-downloaded", false, "List all downloaded models")
	downloadModel  = flag.String("download-model", "", "Download a specific model by name")
	modelName      = flag.String("model", "", "Use a specific model (default: "+models.DefaultModelName+")")
	setDefault     = flag.String("set-default", "", "Set a model as the default")
	engineName     = flag.String("engine", "", "Decoder engine: sphinx, vosk (default: sphinx)")
	searchName     = flag.String("search", "", "Named search to listen with (default: the engine's active search)")
	timeoutMs      = flag.Int("timeout", 0, "No-speech timeout in milliseconds, 0 to disable")
	continuous     = flag.Bool("continuous", false, "Keep listening after a no-speech timeout")
	outputFormat   = flag.String("format", "console", "Output format: console, json, text")
	outputFile     = flag.String("output", "", "Output file (default: stdout)")
	audioSource    = flag.String("source", "portaudio", "Audio source: portaudio, malgo, wav")
	audioFile      = flag.String("file", "", "WAV file to decode with --source wav")
	audioDevice    = flag.String("device", "", "Audio input device name (use --list-devices to see available devices)")
	listDevices    = flag.Bool("list-devices", false, "List all available audio input devices")
	hotkeyBinding  = flag.String("hotkey", "ctrl+shift+space", "Push-to-talk hotkey for --mode ptt")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showVersion    = flag.Bool("version", false, "Show version information")
	autoDownload   = flag.Bool("auto-download", false, "Automatically download the model if not found (no prompt)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	// explicitly set flags override the config file
	applyFlags(cfg)

	if *showVersion {
		fmt.Printf("SphinxVox v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol in MCP mode
	if *mode == "mcp" {
		logger := logging.NewLoggerTo(&cfg.Log, os.Stderr)
		handler := app.NewMCPHandler(cfg, *configFile, Version, GitCommit, logger)
		if err := handler.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("SphinxVox v%s (commit: %s, branch: %s, built: %s)\n",
		Version, GitCommit, GitBranch, BuildTime)
	fmt.Println("Speech Recognition Application")
	fmt.Println()

	if *listDevices {
		dm := app.NewDeviceManager()
		if err := dm.ListDevices(); err != nil {
			os.Exit(1)
		}
		return
	}

	logger := logging.NewLogger(&cfg.Log)

	store, err := models.NewManager(cfg.Model.Dir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mgr := app.NewModelManager(store)

	if done, err := runModelCommand(ctx, mgr); done {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, store, mgr, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runModelCommand handles the model management flags; done reports
// whether one of them was given
func runModelCommand(ctx context.Context, mgr *app.ModelManager) (done bool, err error) {
	switch {
	case *listModels:
		return true, mgr.ListModels(*engineName)
	case *listDownloaded:
		return true, mgr.ListDownloaded()
	case *downloadModel != "":
		return true, mgr.Download(ctx, *downloadModel)
	case *setDefault != "":
		return true, mgr.SetDefault(*setDefault)
	}
	return false, nil
}

func applyFlags(cfg *config.Config) {
	flagsSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagsSet[f.Name] = true
	})

	if flagsSet["model"] {
		cfg.Model.Default = *modelName
	}
	if flagsSet["engine"] {
		cfg.Decoder.Engine = *engineName
	}
	if flagsSet["search"] {
		cfg.Session.Search = *searchName
	}
	if flagsSet["timeout"] {
		cfg.Session.TimeoutMs = *timeoutMs
	}
	if flagsSet["format"] {
		cfg.Output.Format = *outputFormat
	}
	if flagsSet["output"] {
		cfg.Output.File = *outputFile
	}
	if flagsSet["source"] {
		cfg.Audio.Source = *audioSource
	}
	if flagsSet["file"] {
		cfg.Audio.File = *audioFile
		if !flagsSet["source"] {
			cfg.Audio.Source = "wav"
		}
	}
	if flagsSet["device"] {
		cfg.Audio.Device = *audioDevice
	}
	if flagsSet["hotkey"] {
		cfg.Hotkey.Binding = *hotkeyBinding
	}
	if flagsSet["log-level"] {
		cfg.Log.Level = *logLevel
	}
}

func run(ctx context.Context, cfg *config.Config, store *models.Manager, mgr *app.ModelManager, logger *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Decoder.AcousticModel == "" && cfg.Decoder.OptionsFile == "" {
		name := cfg.Model.Default
		if name == "" {
			var err error
			if name, err = store.Default(); err != nil {
				return err
			}
		}
		if err := mgr.EnsureModel(ctx, name, *autoDownload); err != nil {
			return err
		}
		cfg.Model.Default = name
		fmt.Printf("Using model: %s\n", name)
	}

	if cfg.Audio.Source != "wav" && cfg.Audio.Device != "" {
		device, err := app.NewDeviceManager().SelectDevice(cfg.Audio.Device)
		if err != nil {
			return err
		}
		cfg.Audio.Device = device.Name
		cfg.Audio.Source = device.Backend
	}

	fmt.Println("Initializing speech recognition engine...")
	rt, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	tc := app.TranscriberConfig{
		Search:       cfg.Session.Search,
		TimeoutMs:    cfg.Session.TimeoutMs,
		OutputFormat: cfg.Output.Format,
		OutputFile:   cfg.Output.File,
		Continuous:   *continuous,
	}

	switch *mode {
	case "ptt":
		return app.NewPTTTranscriber(app.PTTConfig{
			TranscriberConfig: tc,
			Hotkey:            cfg.Hotkey.Binding,
		}, logger).Run(ctx, rt)
	case "cli":
		return app.NewTranscriber(tc).Run(ctx, rt)
	default:
		return fmt.Errorf("unknown mode %q (valid: cli, ptt, mcp)", *mode)
	}
}

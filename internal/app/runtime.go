package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/assets"
	"github.com/emmett/sphinxvox/internal/audio"
	"github.com/emmett/sphinxvox/internal/config"
	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/logging"
	"github.com/emmett/sphinxvox/internal/metrics"
	"github.com/emmett/sphinxvox/internal/models"
	"github.com/emmett/sphinxvox/internal/publish"
	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

// Runtime is one fully wired recognition session
type Runtime struct {
	Config   *config.Config
	Engine   stt.Engine
	Source   audio.Source
	Session  *recognizer.Session
	Service  *control.Service
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
	Models   *models.Manager

	sinks  []*publish.Sink
	logger *logrus.Logger
}

// NewRuntime syncs assets, loads the engine, opens the source and starts a
// session with metrics, sinks and the control service attached
func NewRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	logger = logging.OrDiscard(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mgr, err := models.NewManager(cfg.Model.Dir, logger)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Models: mgr, logger: logger}

	if err := rt.syncAssets(ctx); err != nil {
		return nil, err
	}

	opts, err := DecoderOptions(cfg, mgr)
	if err != nil {
		return nil, err
	}

	rt.Engine, err = NewEngine(cfg, opts)
	if err != nil {
		return nil, err
	}

	rate, _ := stt.IntegralRate(cfg.Decoder.SampleRate)
	rt.Source, err = audio.NewSource(cfg.Audio.Source, audio.SourceConfig{
		SampleRate:    rate,
		BufferSeconds: cfg.Audio.BufferSeconds,
		Device:        cfg.Audio.Device,
		File:          cfg.Audio.File,
	})
	if err != nil {
		rt.Engine.Close()
		return nil, fmt.Errorf("failed to create audio source: %w", err)
	}

	rt.Session, err = recognizer.NewSession(rt.Engine, rt.Source, recognizer.Config{
		SampleRate:    cfg.Decoder.SampleRate,
		BufferSeconds: cfg.Audio.BufferSeconds,
		RawLogDir:     cfg.Decoder.RawLogDir,
		Logger:        logger,
	})
	if err != nil {
		rt.Source.Close()
		rt.Engine.Close()
		return nil, err
	}

	if err := rt.attach(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) attach() error {
	cfg := rt.Config

	if err := InstallSearches(rt.Session, cfg.Searches); err != nil {
		return err
	}
	// surfaces that start without a search name use this one
	if cfg.Session.Search != "" && rt.Engine.Search() != cfg.Session.Search {
		if err := rt.Session.SetSearch(cfg.Session.Search); err != nil {
			rt.logger.WithError(err).Warn("Configured search is not available, keeping the engine default")
		}
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(rt.Registry)
	if err != nil {
		return err
	}
	rt.Metrics = collector
	rt.Session.AddListener(collector)

	rt.sinks, err = publish.NewSinks(cfg.Sinks, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to connect event sinks: %w", err)
	}
	for _, sink := range rt.sinks {
		rt.Session.AddListener(sink)
	}

	rt.Service = control.NewService(rt.Session, control.DefaultHistory, rt.logger)
	return nil
}

func (rt *Runtime) syncAssets(ctx context.Context) error {
	src := rt.Config.Assets.Source
	if src == "" {
		return nil
	}
	dest := rt.Config.Assets.Dir
	if dest == "" {
		dest = rt.Models.Dir()
	}

	log := rt.logger.WithField("assets_source", src)
	syncer := assets.NewSyncer(os.DirFS(src), dest, 4, rt.logger)
	_, err := syncer.Sync(ctx, assets.Callbacks{
		OnStart: func(n int) {
			log.WithField("items", n).Info("Syncing assets")
		},
		OnComplete: func(dir string) {
			log.WithField("dir", dir).Info("Assets ready")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to sync assets: %w", err)
	}
	return nil
}

// Close stops the session and releases every resource
func (rt *Runtime) Close() error {
	if rt.Service != nil {
		rt.Service.Close()
	}
	var firstErr error
	if rt.Session != nil {
		if err := rt.Session.Close(); err != nil {
			firstErr = err
		}
	}
	for _, sink := range rt.sinks {
		if err := sink.Close(); err != nil {
			rt.logger.WithError(err).WithField("sink", sink.Name()).Warn("Failed to close sink")
		}
	}
	if rt.Engine != nil {
		if err := rt.Engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DecoderOptions merges the options file and the decoder settings.
// Explicit settings win over the file; extra options win over both.
func DecoderOptions(cfg *config.Config, mgr *models.Manager) (*stt.Options, error) {
	d := cfg.Decoder

	opts := stt.DefaultOptions()
	if d.OptionsFile != "" {
		loaded, err := stt.LoadOptionsFile(d.OptionsFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	rate, err := stt.IntegralRate(d.SampleRate)
	if err != nil {
		return nil, err
	}
	opts.SetSampleRate(rate)

	hmm, err := resolveAcousticModel(cfg, mgr, opts)
	if err != nil {
		return nil, err
	}
	if hmm != "" {
		opts.SetAcousticModel(hmm)
	}
	if d.Dictionary != "" {
		opts.SetDictionary(d.Dictionary)
	}
	if d.LanguageModel != "" {
		opts.SetLanguageModel(d.LanguageModel)
	}
	if d.KeywordThreshold > 0 {
		opts.SetKeywordThreshold(d.KeywordThreshold)
	}

	keys := make([]string, 0, len(d.Options))
	for k := range d.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts.SetString(k, d.Options[k])
	}
	return opts, nil
}

// resolveAcousticModel prefers the explicit setting, then the options file,
// then the configured or marked default model from the models directory
func resolveAcousticModel(cfg *config.Config, mgr *models.Manager, opts *stt.Options) (string, error) {
	if cfg.Decoder.AcousticModel != "" {
		return cfg.Decoder.AcousticModel, nil
	}
	if opts.Has(stt.KeyAcousticModel) || mgr == nil {
		return "", nil
	}

	name := cfg.Model.Default
	if name == "" {
		var err error
		if name, err = mgr.Default(); err != nil {
			return "", err
		}
	}
	path, err := mgr.Path(name)
	if err != nil {
		return "", fmt.Errorf("no acoustic model configured and %w", err)
	}
	return path, nil
}

// NewEngine loads the configured decoder
func NewEngine(cfg *config.Config, opts *stt.Options) (stt.Engine, error) {
	switch cfg.Decoder.Engine {
	case "vosk":
		return stt.NewVoskEngine(opts, VADConfig(cfg.VAD))
	default:
		return stt.NewSphinxEngine(opts)
	}
}

// VADConfig maps settings onto the energy VAD, keeping defaults for zeros
func VADConfig(s config.VADSettings) audio.VADConfig {
	vc := audio.DefaultVADConfig()
	if s.Threshold > 0 {
		vc.EnergyThreshold = s.Threshold
	}
	if s.SpeechMs > 0 {
		vc.SpeechDuration = time.Duration(s.SpeechMs) * time.Millisecond
	}
	if s.SilenceMs > 0 {
		vc.SilenceDuration = time.Duration(s.SilenceMs) * time.Millisecond
	}
	return vc
}

// SearchAdder is the part of a session that installs named searches
type SearchAdder interface {
	AddGrammarSearch(name, path string) error
	AddNgramSearch(name, path string) error
	AddKeyphraseSearch(name, phrase string) error
	AddKeywordSearch(name, path string) error
	AddAllphoneSearch(name, path string) error
}

// InstallSearches adds every configured search
func InstallSearches(dst SearchAdder, searches []config.SearchSettings) error {
	for _, s := range searches {
		var err error
		switch s.Type {
		case "keyphrase":
			err = dst.AddKeyphraseSearch(s.Name, s.Phrase)
		case "keyword":
			err = dst.AddKeywordSearch(s.Name, s.File)
		case "grammar":
			err = dst.AddGrammarSearch(s.Name, s.File)
		case "ngram":
			err = dst.AddNgramSearch(s.Name, s.File)
		case "allphone":
			err = dst.AddAllphoneSearch(s.Name, s.File)
		default:
			err = fmt.Errorf("unknown search type %q", s.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to install search %q: %w", s.Name, err)
		}
	}
	return nil
}

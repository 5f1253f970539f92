// Package models keeps a local store of downloadable recognition models.
package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/logging"
)

// ErrUnknownModel is returned for names missing from the catalog
var ErrUnknownModel = errors.New("unknown model")

// Archive formats
const (
	ArchiveZip   = "zip"
	ArchiveTarGz = "tar.gz"
)

// Engines a model can be loaded by
const (
	EngineVosk   = "vosk"
	EngineSphinx = "sphinx"
)

// Model describes a downloadable model. The archive must unpack into a
// top-level directory named after the model.
type Model struct {
	Name        string
	Engine      string
	Language    string
	Size        string
	URL         string
	Archive     string
	Description string
}

// AvailableModels is the download catalog
var AvailableModels = []Model{
	{
		Name:        "vosk-model-small-en-us-0.15",
		Engine:      EngineVosk,
		Language:    "en-US",
		Size:        "40M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Archive:     ArchiveZip,
		Description: "Lightweight English model, fast but less accurate",
	},
	{
		Name:        "vosk-model-en-us-0.22-lgraph",
		Engine:      EngineVosk,
		Language:    "en-US",
		Size:        "128M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22-lgraph.zip",
		Archive:     ArchiveZip,
		Description: "Medium English model, balanced speed and accuracy",
	},
	{
		Name:        "cmusphinx-en-us-5.2",
		Engine:      EngineSphinx,
		Language:    "en-US",
		Size:        "36M",
		URL:         "https://downloads.sourceforge.net/project/cmusphinx/Acoustic%20and%20Language%20Models/US%20English/cmusphinx-en-us-5.2.tar.gz",
		Archive:     ArchiveTarGz,
		Description: "Continuous English acoustic model for pocketsphinx",
	},
	{
		Name:        "cmusphinx-en-us-ptm-5.2",
		Engine:      EngineSphinx,
		Language:    "en-US",
		Size:        "30M",
		URL:         "https://downloads.sourceforge.net/project/cmusphinx/Acoustic%20and%20Language%20Models/US%20English/cmusphinx-en-us-ptm-5.2.tar.gz",
		Archive:     ArchiveTarGz,
		Description: "PTM English acoustic model, tuned for mobile devices",
	},
}

// DefaultModelName is used when no default marker is set
const DefaultModelName = "cmusphinx-en-us-ptm-5.2"

const defaultMarker = ".default_model"

// FindModel finds a model by name in the catalog
func FindModel(name string) *Model {
	for _, model := range AvailableModels {
		if model.Name == name {
			return &model
		}
	}
	return nil
}

// ModelsFor returns the catalog entries loadable by engine
func ModelsFor(engine string) []Model {
	var out []Model
	for _, model := range AvailableModels {
		if model.Engine == engine {
			out = append(out, model)
		}
	}
	return out
}

// ProgressFunc receives download progress; total is -1 when unknown
type ProgressFunc func(downloaded, total int64)

// Manager owns a models directory
type Manager struct {
	dir    string
	client *grab.Client
	logger *logrus.Entry

	// progressInterval is how often ProgressFunc fires during a download
	progressInterval time.Duration
}

// NewManager creates a manager over dir; an empty dir means ./models
func NewManager(dir string, logger *logrus.Logger) (*Manager, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = filepath.Join(cwd, "models")
	}

	client := grab.NewClient()
	client.UserAgent = "sphinxvox"

	return &Manager{
		dir:              dir,
		client:           client,
		logger:           logging.OrDiscard(logger).WithField("models_dir", dir),
		progressInterval: 200 * time.Millisecond,
	}, nil
}

// Dir returns the models directory
func (m *Manager) Dir() string {
	return m.dir
}

// Default returns the marked default model, or DefaultModelName
func (m *Manager) Default() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, defaultMarker))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultModelName, nil
		}
		return DefaultModelName, err
	}

	name := strings.TrimSpace(string(data))
	if name == "" {
		return DefaultModelName, nil
	}
	return name, nil
}

// SetDefault marks a catalog model as the default
func (m *Manager) SetDefault(name string) error {
	if FindModel(name) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, defaultMarker), []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to save default model: %w", err)
	}
	return nil
}

// IsDownloaded checks if a model directory exists
func (m *Manager) IsDownloaded(name string) (bool, error) {
	info, err := os.Stat(filepath.Join(m.dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Path resolves a model name, or an existing directory, to a model path
func (m *Manager) Path(name string) (string, error) {
	if info, err := os.Stat(name); err == nil && info.IsDir() && strings.ContainsRune(name, os.PathSeparator) {
		return name, nil
	}

	downloaded, err := m.IsDownloaded(name)
	if err != nil {
		return "", err
	}
	if !downloaded {
		return "", fmt.Errorf("model not found: %s", name)
	}
	return filepath.Join(m.dir, name), nil
}

// List returns the downloaded model directories, sorted
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	models := []string{}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			models = append(models, entry.Name())
		}
	}
	sort.Strings(models)
	return models, nil
}

// Download fetches and unpacks a catalog model
func (m *Manager) Download(ctx context.Context, name string, progress ProgressFunc) error {
	model := FindModel(name)
	if model == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m.download(ctx, model, progress)
}

func (m *Manager) download(ctx context.Context, model *Model, progress ProgressFunc) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	archivePath := filepath.Join(m.dir, model.Name+"."+model.Archive)
	defer os.Remove(archivePath)

	req, err := grab.NewRequest(archivePath, model.URL)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req = req.WithContext(ctx)

	log := m.logger.WithFields(logrus.Fields{"model": model.Name, "url": model.URL})
	log.Info("Downloading model")

	resp := m.client.Do(req)

	ticker := time.NewTicker(m.progressInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			if progress != nil {
				progress(resp.BytesComplete(), resp.Size())
			}
		case <-resp.Done:
			break loop
		}
	}

	if err := resp.Err(); err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	if progress != nil {
		progress(resp.BytesComplete(), resp.Size())
	}

	log.WithField("bytes", resp.BytesComplete()).Info("Extracting model")
	if err := Extract(archivePath, model.Archive, m.dir); err != nil {
		return fmt.Errorf("failed to extract model: %w", err)
	}

	downloaded, err := m.IsDownloaded(model.Name)
	if err != nil {
		return err
	}
	if !downloaded {
		return fmt.Errorf("archive for %s did not contain a %s directory", model.Name, model.Name)
	}
	return nil
}

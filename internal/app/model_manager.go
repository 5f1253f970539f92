package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emmett/sphinxvox/internal/models"
)

// ModelManager is the console front end of models.Manager
type ModelManager struct {
	store *models.Manager
	in    *bufio.Reader
	out   io.Writer
}

// NewModelManager creates a manager reading answers from stdin
func NewModelManager(store *models.Manager) *ModelManager {
	return &ModelManager{store: store, in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// ListModels prints the catalog; engine filters it when set
func (m *ModelManager) ListModels(engine string) error {
	fmt.Fprintln(m.out, "Available models for download:")
	fmt.Fprintln(m.out)

	catalog := models.AvailableModels
	if engine != "" {
		catalog = models.ModelsFor(engine)
	}

	for i, model := range catalog {
		fmt.Fprintf(m.out, "%d. %s\n", i+1, model.Name)
		fmt.Fprintf(m.out, "   Engine:   %s\n", model.Engine)
		fmt.Fprintf(m.out, "   Language: %s\n", model.Language)
		fmt.Fprintf(m.out, "   Size:     %s\n", model.Size)
		fmt.Fprintf(m.out, "   Info:     %s\n", model.Description)

		if downloaded, _ := m.store.IsDownloaded(model.Name); downloaded {
			fmt.Fprintln(m.out, "   Status:   ✓ Downloaded")
		} else {
			fmt.Fprintln(m.out, "   Status:   Not downloaded")
		}
		fmt.Fprintln(m.out)
	}

	fmt.Fprintln(m.out, "To download a model, use:")
	fmt.Fprintln(m.out, "  sphinxvox --download-model <model-name>")
	return nil
}

// ListDownloaded prints the models present on disk
func (m *ModelManager) ListDownloaded() error {
	downloaded, err := m.store.List()
	if err != nil {
		return fmt.Errorf("error listing models: %w", err)
	}

	if len(downloaded) == 0 {
		fmt.Fprintln(m.out, "No models downloaded yet.")
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "Use 'sphinxvox --list-models' to see available models")
		return nil
	}

	defaultName, _ := m.store.Default()

	fmt.Fprintf(m.out, "Downloaded models (%d):\n\n", len(downloaded))
	for i, name := range downloaded {
		fmt.Fprintf(m.out, "%d. %s", i+1, name)
		if name == defaultName {
			fmt.Fprint(m.out, " [DEFAULT]")
		}
		fmt.Fprintln(m.out)
		if path, err := m.store.Path(name); err == nil {
			fmt.Fprintf(m.out, "   Path: %s\n", path)
		}
	}
	return nil
}

func (m *ModelManager) progress(downloaded, total int64) {
	if total <= 0 {
		fmt.Fprintf(m.out, "\rProgress: %d bytes", downloaded)
		return
	}
	percent := float64(downloaded) / float64(total) * 100
	fmt.Fprintf(m.out, "\rProgress: %.1f%% (%d/%d bytes)", percent, downloaded, total)
}

// Download fetches a model unless it is already present
func (m *ModelManager) Download(ctx context.Context, name string) error {
	model := models.FindModel(name)
	if model == nil {
		fmt.Fprintln(m.out, "Use 'sphinxvox --list-models' to see available models")
		return fmt.Errorf("%w: %s", models.ErrUnknownModel, name)
	}

	downloaded, err := m.store.IsDownloaded(name)
	if err != nil {
		return fmt.Errorf("error checking model: %w", err)
	}
	if downloaded {
		path, _ := m.store.Path(name)
		fmt.Fprintf(m.out, "Model '%s' is already downloaded.\nLocation: %s\n", name, path)
		return nil
	}

	fmt.Fprintf(m.out, "Downloading model: %s (%s)\n", model.Name, model.Size)
	fmt.Fprintf(m.out, "Description: %s\n\n", model.Description)

	if err := m.store.Download(ctx, name, m.progress); err != nil {
		return fmt.Errorf("error downloading model: %w", err)
	}

	fmt.Fprintln(m.out)
	fmt.Fprintf(m.out, "✓ Model '%s' downloaded successfully!\n", name)
	return nil
}

// SetDefault marks the default model
func (m *ModelManager) SetDefault(name string) error {
	if err := m.store.SetDefault(name); err != nil {
		return fmt.Errorf("error setting default model: %w", err)
	}
	fmt.Fprintf(m.out, "✓ Default model set to: %s\n", name)

	if downloaded, _ := m.store.IsDownloaded(name); !downloaded {
		fmt.Fprintln(m.out, "Note: This model is not yet downloaded.")
		fmt.Fprintf(m.out, "Run 'sphinxvox --download-model %s' to download it.\n", name)
	}
	return nil
}

// EnsureModel downloads name if missing, asking first unless autoDownload
func (m *ModelManager) EnsureModel(ctx context.Context, name string, autoDownload bool) error {
	downloaded, err := m.store.IsDownloaded(name)
	if err != nil {
		return fmt.Errorf("failed to check for model: %w", err)
	}
	if downloaded {
		return nil
	}

	if !autoDownload {
		fmt.Fprintf(m.out, "Model '%s' not found.\n", name)
		fmt.Fprintf(m.out, "Download '%s'? (y/n): ", name)

		response, err := m.in.ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("failed to read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			return fmt.Errorf("model download declined")
		}
	}

	if err := m.store.Download(ctx, name, m.progress); err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	fmt.Fprintln(m.out)
	return nil
}

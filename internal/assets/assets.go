// Package assets keeps a writable copy of packaged model files in sync.
//
// The source lists its items in assets.lst, one relative path per line.
// Each item may ship a <item>.md5 checksum; otherwise one is computed.
// The destination keeps its own assets.lst of "<path> <md5>" lines, which
// is how unchanged items are skipped and stale ones removed.
package assets

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"github.com/emmett/sphinxvox/internal/logging"
)

// ListFile names the item list in both source and destination
const ListFile = "assets.lst"

// Callbacks report progress of a Sync. Any of them may be nil.
// They are never called concurrently.
type Callbacks struct {
	OnStart     func(items int)
	OnProgress  func(path string)
	OnComplete  func(dir string)
	OnCancelled func()
	OnError     func(err error)
}

// Plan is what a Sync would do
type Plan struct {
	// Items maps every packaged path to its checksum
	Items map[string]string

	// Copy lists paths that are new, changed or missing at the destination
	Copy []string

	// Remove lists paths recorded at the destination but no longer packaged
	Remove []string
}

// Syncer copies items from a packaged fs.FS into a directory
type Syncer struct {
	src     fs.FS
	dest    string
	workers int
	logger  *logrus.Entry

	cbMu sync.Mutex
}

// NewSyncer creates a syncer; workers below 1 means 1
func NewSyncer(src fs.FS, dest string, workers int, logger *logrus.Logger) *Syncer {
	if workers < 1 {
		workers = 1
	}
	return &Syncer{
		src:     src,
		dest:    dest,
		workers: workers,
		logger:  logging.OrDiscard(logger).WithField("assets_dir", dest),
	}
}

// Items reads the packaged item list and checksums
func (s *Syncer) Items() (map[string]string, error) {
	paths, err := readLines(s.src, ListFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ListFile, err)
	}

	items := make(map[string]string, len(paths))
	for _, p := range paths {
		if !fs.ValidPath(p) {
			return nil, fmt.Errorf("invalid asset path %q", p)
		}
		sum, err := s.checksum(p)
		if err != nil {
			return nil, err
		}
		items[p] = sum
	}
	return items, nil
}

func (s *Syncer) checksum(p string) (string, error) {
	if lines, err := readLines(s.src, p+".md5"); err == nil && len(lines) > 0 {
		return strings.Fields(lines[0])[0], nil
	}

	f, err := s.src.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open asset %s: %w", p, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash asset %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExternalItems reads the destination's item list; a missing list is empty
func (s *Syncer) ExternalItems() (map[string]string, error) {
	items := make(map[string]string)

	lines, err := readLines(os.DirFS(s.dest), ListFile)
	if errors.Is(err, fs.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read destination %s: %w", ListFile, err)
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		// the list lives in the destination, so entries must stay inside it
		if !fs.ValidPath(fields[0]) || strings.Contains(fields[0], `\`) {
			s.logger.WithField("path", fields[0]).Warn("Ignore invalid path in destination item list")
			continue
		}
		items[fields[0]] = fields[1]
	}
	return items, nil
}

// Plan compares source and destination without touching anything
func (s *Syncer) Plan() (*Plan, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	external, err := s.ExternalItems()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Items: items}
	for p, sum := range items {
		if external[p] == sum && s.exists(p) {
			s.logger.WithField("path", p).Debug("Skip asset, checksums match")
			continue
		}
		plan.Copy = append(plan.Copy, p)
	}
	for p := range external {
		if _, ok := items[p]; !ok {
			plan.Remove = append(plan.Remove, p)
		}
	}
	sort.Strings(plan.Copy)
	sort.Strings(plan.Remove)
	return plan, nil
}

func (s *Syncer) exists(p string) bool {
	_, err := os.Stat(filepath.Join(s.dest, filepath.FromSlash(p)))
	return err == nil
}

// Sync brings the destination up to date and returns its path.
// Copies run concurrently; the item list is only written on success.
func (s *Syncer) Sync(ctx context.Context, cb Callbacks) (string, error) {
	dir, err := s.sync(ctx, cb)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("Asset sync cancelled")
		s.notify(func() {
			if cb.OnCancelled != nil {
				cb.OnCancelled()
			}
		})
	case err != nil:
		s.logger.WithError(err).Error("Asset sync failed")
		s.notify(func() {
			if cb.OnError != nil {
				cb.OnError(err)
			}
		})
	default:
		s.notify(func() {
			if cb.OnComplete != nil {
				cb.OnComplete(dir)
			}
		})
	}
	return dir, err
}

func (s *Syncer) sync(ctx context.Context, cb Callbacks) (string, error) {
	plan, err := s.Plan()
	if err != nil {
		return "", err
	}
	s.notify(func() {
		if cb.OnStart != nil {
			cb.OnStart(len(plan.Copy))
		}
	})

	if err := os.MkdirAll(s.dest, 0755); err != nil {
		return "", fmt.Errorf("failed to create assets dir: %w", err)
	}

	var (
		errMu    sync.Mutex
		firstErr error
	)
	pool := workerpool.New(s.workers)
	for _, p := range plan.Copy {
		p := p
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			if err := s.copy(p); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			s.logger.WithField("path", p).Info("Copied asset")
			s.notify(func() {
				if cb.OnProgress != nil {
					cb.OnProgress(p)
				}
			})
		})
	}
	pool.StopWait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if firstErr != nil {
		return "", firstErr
	}

	for _, p := range plan.Remove {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		target := filepath.Join(s.dest, filepath.FromSlash(p))
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to remove asset %s: %w", p, err)
		}
		s.logger.WithField("path", p).Info("Removed asset")
	}

	if err := s.writeItemList(plan.Items); err != nil {
		return "", err
	}
	return s.dest, nil
}

func (s *Syncer) notify(fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	fn()
}

// copy writes one item through a temp file so readers never see partial data
func (s *Syncer) copy(p string) error {
	in, err := s.src.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open asset %s: %w", p, err)
	}
	defer in.Close()

	target := filepath.Join(s.dest, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".asset-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", p, err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy asset %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy asset %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to install asset %s: %w", p, err)
	}
	return nil
}

func (s *Syncer) writeItemList(items map[string]string) error {
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s %s\n", p, items[p])
	}
	if err := os.WriteFile(filepath.Join(s.dest, ListFile), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ListFile, err)
	}
	return nil
}

// CopyAll copies every file under root, overwriting existing files.
// It ignores the item list and checksums.
func (s *Syncer) CopyAll(ctx context.Context, root string) (string, error) {
	err := fs.WalkDir(s.src, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return s.copy(p)
	})
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dest, filepath.FromSlash(root)), nil
}

func readLines(fsys fs.FS, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

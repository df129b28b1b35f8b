package keystore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Keywords []string `yaml:"keywords"`
}

// File stores keywords in a YAML document:
//
//	keywords:
//	  - sponsored
//	  - ad-banner
type File struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu sync.Mutex
}

// FileOption configures a File store.
type FileOption func(*File)

// WithFileLogger sets the logger. Default: slog.Default().
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *File) { f.logger = l }
}

// WithFileDebounce sets the quiet period after a write event before Watch
// rereads the file. Default: 50ms.
func WithFileDebounce(d time.Duration) FileOption {
	return func(f *File) { f.debounce = d }
}

// NewFile returns a store backed by path. The file need not exist.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, logger: slog.Default(), debounce: 50 * time.Millisecond}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Get(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", f.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", f.path, err)
	}
	return Normalize(doc.Keywords), nil
}

// Set writes through a temporary file and a rename so readers never see a
// partial document.
func (f *File) Set(_ context.Context, keywords []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(fileDoc{Keywords: Normalize(keywords)})
	if err != nil {
		return fmt.Errorf("keystore: encode: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("keystore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".keywords-*.yaml")
	if err != nil {
		return fmt.Errorf("keystore: temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keystore: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("keystore: rename: %w", err)
	}
	return nil
}

// Watch rereads the file whenever it is written, created, renamed or
// removed, and calls fn with the new list. The parent directory is watched
// so editors that replace the file are seen too.
func (f *File) Watch(ctx context.Context, fn func([]string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("keystore: watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("keystore: mkdir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("keystore: watch %s: %w", dir, err)
	}
	name := filepath.Clean(f.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(f.debounce)
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("keystore: watch error", "path", f.path, "error", err)

		case <-fire:
			fire = nil
			list, err := f.Get(ctx)
			if err != nil {
				f.logger.Warn("keystore: reload failed", "path", f.path, "error", err)
				continue
			}
			f.logger.Debug("keystore: file changed", "path", f.path, "keywords", len(list))
			fn(list)
		}
	}
}

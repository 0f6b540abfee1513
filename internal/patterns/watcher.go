package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/landing-lab/landing-lab/internal/metrics"
)

const reloadDebounce = 100 * time.Millisecond

// Source holds the current catalogue and, once Watch is called, swaps in a
// new one whenever the file changes. A reload that fails keeps the previous
// catalogue.
type Source struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	catalogue *Catalogue
	onChange  []func(*Catalogue)
}

// NewSource loads the catalogue at path.
func NewSource(path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat, err := LoadCatalogue(path)
	if err != nil {
		return nil, err
	}
	return &Source{path: path, logger: logger, catalogue: cat}, nil
}

// StaticSource wraps an already-loaded catalogue. Watch is not available.
func StaticSource(cat *Catalogue) *Source {
	return &Source{catalogue: cat, logger: slog.Default()}
}

func (s *Source) Catalogue() *Catalogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalogue
}

// OnChange registers fn to run after each successful reload.
func (s *Source) OnChange(fn func(*Catalogue)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Reload re-reads the file immediately.
func (s *Source) Reload() error {
	if s.path == "" {
		return fmt.Errorf("catalogue has no backing file")
	}

	cat, err := LoadCatalogue(s.path)
	if err != nil {
		metrics.CatalogueReloads.WithLabelValues("error").Inc()
		s.logger.Warn("catalogue reload failed", "path", s.path, "error", err)
		return err
	}

	s.mu.Lock()
	s.catalogue = cat
	callbacks := append([]func(*Catalogue){}, s.onChange...)
	s.mu.Unlock()

	metrics.CatalogueReloads.WithLabelValues("ok").Inc()
	s.logger.Info("catalogue reloaded", "path", s.path, "patterns", len(cat.Patterns))

	for _, fn := range callbacks {
		fn(cat)
	}
	return nil
}

// Watch reloads the catalogue on writes until ctx is cancelled. The parent
// directory is watched so editors that replace the file are picked up.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("catalogue has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Source) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				_ = s.Reload()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("catalogue watcher error", "error", err)
		}
	}
}

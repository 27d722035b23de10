package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc rebuilds the effective Config from its sources.
type ReloadFunc func() (Config, error)

// Watcher reloads connection settings when the settings file changes.
// Symbol catalogs are never replaced.
type Watcher struct {
	path   string
	store  *Store
	reload ReloadFunc
	log    zerolog.Logger
	delay  time.Duration

	mu       sync.Mutex
	debounce *time.Timer
	reloaded chan struct{}
}

// NewWatcher creates a watcher for the settings file at path.
func NewWatcher(path string, store *Store, reload ReloadFunc, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		store:    store,
		reload:   reload,
		log:      logger.With().Str("component", "settings-watcher").Logger(),
		delay:    100 * time.Millisecond,
		reloaded: make(chan struct{}, 1),
	}
}

// Reloaded receives a value after each successful reload.
func (w *Watcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Run watches the directory holding the settings file until ctx is done.
// The directory is watched rather than the file so that editors replacing
// the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, w.apply)
}

// apply reloads and validates; an invalid file leaves the settings as they were.
func (w *Watcher) apply() {
	cfg, err := w.reload()
	if err == nil {
		cfg.Symbols = w.store.Get().Symbols
		err = cfg.Validate()
	}
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("settings reload rejected")
		return
	}
	w.store.SetConnection(cfg)
	w.log.Info().Str("path", w.path).Msg("settings reloaded")

	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}

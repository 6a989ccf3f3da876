package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wudi/portway/internal/logging"
)

// Watcher reloads the configuration file when it changes on disk and
// hands each parsed generation to apply. A file that fails to load or
// apply is rejected; the previous generation keeps serving.
type Watcher struct {
	fs       *fsnotify.Watcher
	loader   *Loader
	path     string
	apply    func(*Config) error
	debounce time.Duration
	done     chan struct{}
}

// NewWatcher builds a watcher for path. Nothing is watched until Start.
func NewWatcher(path string, apply func(*Config) error) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fs:       fs,
		loader:   NewLoader(),
		path:     path,
		apply:    apply,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce overrides the delay between a file event and the reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start watches the file's directory so editor rename-and-replace saves
// are still observed, then processes events until Stop.
func (w *Watcher) Start() error {
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop ends the watch. Safe to call once.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) loop() {
	var pending *time.Timer

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Coalesce the event burst a single save produces
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Error("config watcher error", zap.Error(err))

		case <-w.done:
			if pending != nil {
				pending.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.path)
	if err != nil {
		logging.Error("reload rejected, keeping previous configuration",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.apply(cfg); err != nil {
		logging.Error("reload rejected, keeping previous configuration",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	logging.Info("configuration file change applied", zap.String("path", w.path))
}

// internal/config/watcher.go
package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Watcher reloads a configuration file when it changes on disk and hands the
// validated result to registered callbacks. Invalid edits are logged and
// ignored so the last good configuration stays in effect.
type Watcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	load       func(string) (*Config, error)
	callbacks  []func(*Config)
	logger     utils.Logger
	mu         sync.RWMutex
	stopped    bool
	done       chan struct{}
}

// NewWatcher starts watching configPath, reloading it with LoadFromFile.
func NewWatcher(configPath string, logger utils.Logger) (*Watcher, error) {
	return newWatcher(configPath, LoadFromFile, logger)
}

// NewServiceWatcher reloads configPath with LoadServiceFile.
func NewServiceWatcher(configPath string, logger utils.Logger) (*Watcher, error) {
	return newWatcher(configPath, LoadServiceFile, logger)
}

func newWatcher(configPath string, load func(string) (*Config, error), logger utils.Logger) (*Watcher, error) {
	if logger == nil {
		logger = utils.NewComponentLogger("config-watcher")
	}
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors often replace the file, so the directory is watched as well.
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		watcher:    fw,
		configPath: absPath,
		load:       load,
		logger:     logger.WithField("path", absPath),
		done:       make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

// OnChange registers a callback invoked with each successfully reloaded config.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) watch() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == w.configPath && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return
	}
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	cfg, err := w.load(w.configPath)
	if err != nil {
		w.logger.Warnf("config reload rejected: %v", err)
		return
	}
	w.logger.Info("configuration reloaded")
	for _, callback := range callbacks {
		callback(cfg)
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

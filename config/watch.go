package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"halo/log"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup

	mu      sync.RWMutex
	current *Config
}

// Watch starts watching path's directory. onChange receives each config
// that loads and validates; invalid edits are logged and ignored.
func Watch(ctx context.Context, path string, initial *Config, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, onChange: onChange, watcher: fw, current: initial}
	w.wg.Add(1)
	go w.loop(ctx)
	log.Infof("config: watching %s", path)
	return w, nil
}

func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) Close() {
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	name := filepath.Base(w.path)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			// editors that replace the file emit Create or Rename
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Warnf("config reload: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warnf("config reload: %v", err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	log.Info("config reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

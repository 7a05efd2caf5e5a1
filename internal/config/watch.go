package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce coalesces the truncate and write events of a single save.
var watchDebounce = 100 * time.Millisecond

// Watch reloads the configuration with load whenever one of files is
// written, created or replaced, and passes the result to onChange. It
// watches the parent directories so editors that save via rename are seen.
// Bursts of events for one file are debounced, and a file that is empty when
// the burst settles is ignored. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, files []string, load func() (Config, error), onChange func(Config), log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Debug("not watching config dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		dirs[dir] = true
	}

	pending := make(map[string]*time.Timer)
	fired := make(chan string)
	stop := make(chan struct{})
	defer func() {
		close(stop)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case name := <-fired:
			delete(pending, name)
			if info, err := os.Stat(name); err == nil && info.Size() == 0 {
				log.Debug("skipping empty config file", zap.String("file", name))
				continue
			}
			cfg, err := load()
			if err != nil {
				log.Warn("config reload failed", zap.String("file", name), zap.Error(err))
				continue
			}
			if err := cfg.Validate(); err != nil {
				log.Warn("reloaded config is invalid", zap.String("file", name), zap.Error(err))
				continue
			}
			log.Debug("config reloaded", zap.String("file", name))
			onChange(cfg)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !targets[name] {
				continue
			}
			if t, ok := pending[name]; ok {
				t.Reset(watchDebounce)
				continue
			}
			pending[name] = time.AfterFunc(watchDebounce, func() {
				select {
				case fired <- name:
				case <-stop:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			log.Debug("config watcher error", zap.Error(err))
		}
	}
}

package config

import (
	"kato/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch watches path for writes and invokes onChange with the newly loaded
// and validated configuration each time it changes. Parse/validation
// failures are logged and the previous configuration is left in place —
// a malformed edit never takes a running engine down.
//
// The returned *fsnotify.Watcher must be closed by the caller to stop
// watching.
func Watch(path string, onChange func(*SessionConfiguration)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	log := logging.Get(logging.CategoryEngine)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadFile(path)
				if err != nil {
					log.Warnw("config reload failed, keeping previous configuration", "path", path, "error", err)
					continue
				}
				log.Infow("configuration reloaded", "path", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnw("config watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}

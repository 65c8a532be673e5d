package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/twistedxcom/vigil/internal/logging"
	"github.com/twistedxcom/vigil/internal/syncx"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

// reloadDebounce absorbs editor write bursts (write + chmod + rename)
// into one reload.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk. The parent
// directory is watched rather than the file itself, so atomic
// replace-by-rename saves are seen too.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce *syncx.Debouncer
	onChange func(*Config)
	done     chan struct{}
}

// Watch starts watching path's directory. onChange is called with the
// freshly loaded config after each settled change; a config that fails
// to parse is logged and skipped, keeping the previous one in effect.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		watcher:  fw,
		debounce: syncx.NewDebouncer(reloadDebounce),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher and cancels any pending reload.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	w.debounce.Stop()
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce.Call("reload", w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			cfgLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.path)
	if err != nil {
		cfgLog.Warn("config_reload_failed", slog.String("error", err.Error()))
		return
	}
	cfgLog.Info("config_reloaded", slog.String("path", w.path))
	w.onChange(cfg)
}

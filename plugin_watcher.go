package main

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PluginWatcher hot-reloads plugin scripts when their files change on
// disk, so editing a plugin takes effect without restarting.
type PluginWatcher struct {
	plugins *PluginManager
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	mu      sync.Mutex
}

// NewPluginWatcher starts watching the plugin manager's directory.
// Returns an error if the directory cannot be watched (e.g. it does
// not exist yet).
func NewPluginWatcher(plugins *PluginManager) (*PluginWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(plugins.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &PluginWatcher{
		plugins: plugins,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}
	go w.watch()

	LogInfo("plugin_watcher").Str("path", plugins.Dir()).Msg("Watching plugins directory")
	return w, nil
}

// Stop stops watching
func (w *PluginWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *PluginWatcher) watch() {
	// Debounce: editors and atomic saves fire several events per write
	const debounceDelay = 300 * time.Millisecond
	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-w.stopCh:
			for _, t := range pending {
				t.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".js") {
				continue
			}

			path := event.Name
			if t, exists := pending[path]; exists {
				t.Stop()
			}

			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[path] = time.AfterFunc(debounceDelay, func() {
					if err := w.plugins.LoadFile(path); err != nil {
						LogWarn("plugin_watcher").Err(err).Str("file", path).Msg("Reload failed")
					}
				})
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				pending[path] = time.AfterFunc(debounceDelay, func() {
					w.plugins.UnloadByPath(path)
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			LogError("plugin_watcher").Err(err).Msg("Watcher error")
		}
	}
}

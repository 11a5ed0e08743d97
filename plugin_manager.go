package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"

	"droidctl/pkg/types"
)

// ========================================
// PluginManager - JS log processors
// ========================================

// Plugin is one loaded JavaScript log processor. Scripts live as *.js
// files in the plugins directory and declare a global object:
//
//	plugin = {
//	    name: "crash-detector",
//	    onInit: function(ctx) { ... },          // optional
//	    onEntry: function(entry, ctx) { ... },  // required
//	    onDestroy: function(ctx) { ... },       // optional
//	}
type Plugin struct {
	Name string
	Path string

	// mu serializes VM access: goja.Runtime is not thread safe
	mu          sync.Mutex
	vm          *goja.Runtime
	onEntryFunc goja.Callable
	onInitFunc  goja.Callable
	onDestroy   goja.Callable
	state       map[string]interface{}
}

// pluginExecTimeout bounds a single onEntry call
var pluginExecTimeout = 5 * time.Second

// PluginManager loads JS plugins from a directory and fans captured
// log entries into them.
type PluginManager struct {
	dir     string
	mu      sync.RWMutex
	plugins map[string]*Plugin // name -> plugin

	attachMu sync.Mutex
	attached map[string]func() // deviceID -> unsubscribe
}

// NewPluginManager creates a manager rooted at dir. The directory is
// created lazily; a missing directory just means no plugins.
func NewPluginManager(dir string) *PluginManager {
	return &PluginManager{
		dir:      dir,
		plugins:  make(map[string]*Plugin),
		attached: make(map[string]func()),
	}
}

// Dir returns the plugins directory
func (pm *PluginManager) Dir() string {
	return pm.dir
}

// Count returns the number of loaded plugins
func (pm *PluginManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.plugins)
}

// Names lists loaded plugin names
func (pm *PluginManager) Names() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	return names
}

// LoadAll loads every *.js file in the plugins directory. Individual
// script failures are logged and skipped.
func (pm *PluginManager) LoadAll() error {
	entries, err := os.ReadDir(pm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read plugins directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		path := filepath.Join(pm.dir, entry.Name())
		if err := pm.LoadFile(path); err != nil {
			LogWarn("plugins").Err(err).Str("file", entry.Name()).Msg("Failed to load plugin")
		}
	}
	return nil
}

// LoadFile compiles and loads one plugin script, replacing any loaded
// plugin with the same name.
func (pm *PluginManager) LoadFile(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plugin: %w", err)
	}

	vm := goja.New()
	plugin := &Plugin{
		Path:  path,
		vm:    vm,
		state: make(map[string]interface{}),
	}
	injectHelpers(vm)

	if _, err := vm.RunString(string(code)); err != nil {
		return fmt.Errorf("plugin script failed: %w", err)
	}

	pluginObj := vm.Get("plugin")
	if pluginObj == nil || goja.IsUndefined(pluginObj) {
		return fmt.Errorf("no plugin object declared in %s", filepath.Base(path))
	}
	obj := pluginObj.ToObject(vm)

	nameVal := obj.Get("name")
	if nameVal == nil || goja.IsUndefined(nameVal) || nameVal.String() == "" {
		plugin.Name = strings.TrimSuffix(filepath.Base(path), ".js")
	} else {
		plugin.Name = nameVal.String()
	}

	onEntryVal := obj.Get("onEntry")
	if onEntryVal == nil || goja.IsUndefined(onEntryVal) {
		return fmt.Errorf("plugin %s has no onEntry function", plugin.Name)
	}
	onEntryFunc, ok := goja.AssertFunction(onEntryVal)
	if !ok {
		return fmt.Errorf("plugin %s: onEntry is not a function", plugin.Name)
	}
	plugin.onEntryFunc = onEntryFunc

	if v := obj.Get("onInit"); v != nil && !goja.IsUndefined(v) {
		plugin.onInitFunc, _ = goja.AssertFunction(v)
	}
	if v := obj.Get("onDestroy"); v != nil && !goja.IsUndefined(v) {
		plugin.onDestroy, _ = goja.AssertFunction(v)
	}

	if plugin.onInitFunc != nil {
		ctx := pluginContext(vm, plugin, "")
		if _, err := plugin.onInitFunc(goja.Undefined(), ctx); err != nil {
			LogWarn("plugins").Err(err).Str("plugin", plugin.Name).Msg("onInit failed")
		}
	}

	pm.mu.Lock()
	if old, exists := pm.plugins[plugin.Name]; exists {
		unloadLocked(old)
	}
	pm.plugins[plugin.Name] = plugin
	pm.mu.Unlock()

	LogInfo("plugins").Str("plugin", plugin.Name).Str("file", filepath.Base(path)).Msg("Plugin loaded")
	return nil
}

// Unload removes a plugin by name, calling its onDestroy
func (pm *PluginManager) Unload(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	plugin, exists := pm.plugins[name]
	if !exists {
		return fmt.Errorf("plugin not loaded: %s", name)
	}
	unloadLocked(plugin)
	delete(pm.plugins, name)
	LogInfo("plugins").Str("plugin", name).Msg("Plugin unloaded")
	return nil
}

// UnloadByPath removes whichever plugin was loaded from path
func (pm *PluginManager) UnloadByPath(path string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for name, plugin := range pm.plugins {
		if plugin.Path == path {
			unloadLocked(plugin)
			delete(pm.plugins, name)
			LogInfo("plugins").Str("plugin", name).Msg("Plugin unloaded")
			return
		}
	}
}

func unloadLocked(plugin *Plugin) {
	plugin.mu.Lock()
	defer plugin.mu.Unlock()

	if plugin.onDestroy != nil {
		ctx := pluginContext(plugin.vm, plugin, "")
		if _, err := plugin.onDestroy(goja.Undefined(), ctx); err != nil {
			LogWarn("plugins").Err(err).Str("plugin", plugin.Name).Msg("onDestroy failed")
		}
	}
	plugin.vm = nil
	plugin.onEntryFunc = nil
	plugin.onInitFunc = nil
	plugin.onDestroy = nil
	plugin.state = nil
}

// Attach subscribes the loaded plugins to a logcat engine. Attaching
// twice for the same device replaces the previous subscription.
func (pm *PluginManager) Attach(deviceID string, lc *Logcat) {
	pm.attachMu.Lock()
	defer pm.attachMu.Unlock()

	if unsub, ok := pm.attached[deviceID]; ok {
		unsub()
	}
	pm.attached[deviceID] = lc.OnEntry(func(entry types.LogEntry) {
		pm.ProcessEntry(deviceID, entry)
	})
}

// Detach removes the subscription for a device
func (pm *PluginManager) Detach(deviceID string) {
	pm.attachMu.Lock()
	defer pm.attachMu.Unlock()
	if unsub, ok := pm.attached[deviceID]; ok {
		unsub()
		delete(pm.attached, deviceID)
	}
}

// ProcessEntry runs every loaded plugin's onEntry for one log entry.
// Plugins run sequentially; a slow or crashing plugin is interrupted
// and logged, never propagated.
func (pm *PluginManager) ProcessEntry(deviceID string, entry types.LogEntry) {
	pm.mu.RLock()
	active := make([]*Plugin, 0, len(pm.plugins))
	for _, plugin := range pm.plugins {
		active = append(active, plugin)
	}
	pm.mu.RUnlock()

	for _, plugin := range active {
		if err := pm.runOnEntry(plugin, deviceID, entry); err != nil {
			LogWarn("plugins").Err(err).Str("plugin", plugin.Name).Msg("onEntry failed")
		}
	}
}

func (pm *PluginManager) runOnEntry(plugin *Plugin, deviceID string, entry types.LogEntry) (err error) {
	done := make(chan error, 1)
	running := make(chan *goja.Runtime, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("plugin panic: %v", r)
			}
		}()

		plugin.mu.Lock()
		defer plugin.mu.Unlock()

		if plugin.vm == nil || plugin.onEntryFunc == nil {
			done <- fmt.Errorf("plugin %s has been unloaded", plugin.Name)
			return
		}
		// clear any interrupt left by a previous timeout
		plugin.vm.ClearInterrupt()
		running <- plugin.vm

		entryObj := plugin.vm.ToValue(map[string]interface{}{
			"timestamp": entry.Timestamp.UnixMilli(),
			"level":     entry.Level,
			"message":   entry.Message,
		})
		ctx := pluginContext(plugin.vm, plugin, deviceID)

		_, callErr := plugin.onEntryFunc(goja.Undefined(), entryObj, ctx)
		done <- callErr
	}()

	select {
	case err = <-done:
		return err
	case <-time.After(pluginExecTimeout):
		// The worker goroutine still holds plugin.mu while the script runs,
		// so taking it here would deadlock. Interrupt is safe to call from
		// another goroutine.
		select {
		case vm := <-running:
			vm.Interrupt("timeout")
		default:
		}
		return fmt.Errorf("plugin execution timed out (>%v)", pluginExecTimeout)
	}
}

// Close unloads every plugin and drops all subscriptions
func (pm *PluginManager) Close() {
	pm.attachMu.Lock()
	for id, unsub := range pm.attached {
		unsub()
		delete(pm.attached, id)
	}
	pm.attachMu.Unlock()

	pm.mu.Lock()
	defer pm.mu.Unlock()
	for name, plugin := range pm.plugins {
		unloadLocked(plugin)
		delete(pm.plugins, name)
	}
}

// ========== helper injection ==========

// injectHelpers exposes matching and query helpers as VM globals
func injectHelpers(vm *goja.Runtime) {
	vm.Set("matches", func(regexStr, text string) interface{} {
		re, err := regexp.Compile(regexStr)
		if err != nil {
			return nil
		}
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		return m
	})

	vm.Set("jsonQuery", func(obj interface{}, path string) interface{} {
		jsonBytes, err := json.Marshal(obj)
		if err != nil {
			return nil
		}
		result := gjson.GetBytes(jsonBytes, path)
		if !result.Exists() {
			return nil
		}
		return result.Value()
	})

	vm.Set("formatTime", func(timestamp int64, format string) string {
		if format == "" {
			format = "2006-01-02 15:04:05"
		}
		return time.UnixMilli(timestamp).Format(format)
	})
}

// pluginContext builds the ctx object passed to plugin callbacks
func pluginContext(vm *goja.Runtime, plugin *Plugin, deviceID string) goja.Value {
	ctx := vm.NewObject()

	ctx.Set("deviceID", deviceID)
	ctx.Set("log", func(message string, level ...string) {
		lvl := "info"
		if len(level) > 0 && level[0] != "" {
			lvl = level[0]
		}
		switch lvl {
		case "debug":
			LogDebug("plugins").Str("plugin", plugin.Name).Msg(message)
		case "warn":
			LogWarn("plugins").Str("plugin", plugin.Name).Msg(message)
		case "error":
			LogError("plugins").Str("plugin", plugin.Name).Msg(message)
		default:
			LogInfo("plugins").Str("plugin", plugin.Name).Msg(message)
		}
	})
	ctx.Set("setState", func(key string, value interface{}) {
		plugin.state[key] = value
	})
	ctx.Set("getState", func(key string) interface{} {
		return plugin.state[key]
	})

	return ctx
}

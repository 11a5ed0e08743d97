package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"droidctl/pkg/types"
)

func writePlugin(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pluginEntry(level, msg string) types.LogEntry {
	return types.LogEntry{Timestamp: time.Now(), Level: level, Message: msg}
}

func TestPluginManager_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "one.js", `plugin = { name: "one", onEntry: function(entry, ctx) {} }`)
	writePlugin(t, dir, "two.js", `plugin = { name: "two", onEntry: function(entry, ctx) {} }`)
	writePlugin(t, dir, "broken.js", `plugin = { name: "broken" }`) // missing onEntry
	writePlugin(t, dir, "notes.txt", `ignored`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if pm.Count() != 2 {
		t.Errorf("expected 2 plugins loaded, got %d (%v)", pm.Count(), pm.Names())
	}
}

func TestPluginManager_MissingDirIsEmpty(t *testing.T) {
	pm := NewPluginManager(filepath.Join(t.TempDir(), "does-not-exist"))
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("missing directory should not be an error: %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("expected no plugins, got %d", pm.Count())
	}
}

func TestPluginManager_NameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "unnamed.js", `plugin = { onEntry: function(entry, ctx) {} }`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	names := pm.Names()
	if len(names) != 1 || names[0] != "unnamed" {
		t.Errorf("expected name from filename, got %v", names)
	}
}

func TestPluginManager_OnEntryReceivesEntry(t *testing.T) {
	dir := t.TempDir()
	// The plugin stores what it saw; the test reads it back through state
	writePlugin(t, dir, "recorder.js", `
plugin = {
    name: "recorder",
    onEntry: function(entry, ctx) {
        ctx.setState("lastLevel", entry.level);
        ctx.setState("lastMessage", entry.message);
        ctx.setState("count", (ctx.getState("count") || 0) + 1);
    }
}`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	pm.ProcessEntry("emulator-5554", pluginEntry("E", "FATAL EXCEPTION: main"))
	pm.ProcessEntry("emulator-5554", pluginEntry("I", "recovered"))

	pm.mu.RLock()
	plugin := pm.plugins["recorder"]
	pm.mu.RUnlock()
	if plugin == nil {
		t.Fatal("recorder plugin not loaded")
	}
	plugin.mu.Lock()
	defer plugin.mu.Unlock()
	if plugin.state["lastMessage"] != "recovered" || plugin.state["lastLevel"] != "I" {
		t.Errorf("unexpected plugin state: %v", plugin.state)
	}
	if count, ok := plugin.state["count"].(int64); !ok || count != 2 {
		t.Errorf("expected count 2, got %v", plugin.state["count"])
	}
}

func TestPluginManager_OnInitRuns(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "init.js", `
plugin = {
    name: "init",
    onInit: function(ctx) { ctx.setState("initialized", true); },
    onEntry: function(entry, ctx) {}
}`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	pm.mu.RLock()
	plugin := pm.plugins["init"]
	pm.mu.RUnlock()
	if plugin.state["initialized"] != true {
		t.Error("onInit should have run at load time")
	}
}

func TestPluginManager_HelpersAvailable(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "helpers.js", `
plugin = {
    name: "helpers",
    onEntry: function(entry, ctx) {
        var m = matches("pid=(\\d+)", entry.message);
        if (m) { ctx.setState("pid", m[1]); }
        ctx.setState("noMatch", matches("zzz", entry.message) === null);
    }
}`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	pm.ProcessEntry("emulator-5554", pluginEntry("I", "process died pid=4242"))

	pm.mu.RLock()
	plugin := pm.plugins["helpers"]
	pm.mu.RUnlock()
	plugin.mu.Lock()
	defer plugin.mu.Unlock()
	if plugin.state["pid"] != "4242" {
		t.Errorf("matches helper failed, state: %v", plugin.state)
	}
	if plugin.state["noMatch"] != true {
		t.Errorf("matches should return null on no match, state: %v", plugin.state)
	}
}

func TestPluginManager_ReplaceSameName(t *testing.T) {
	dir := t.TempDir()
	path := writePlugin(t, dir, "v.js", `plugin = { name: "v", onEntry: function(e, c) { c.setState("ver", 1); } }`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	writePlugin(t, dir, "v.js", `plugin = { name: "v", onEntry: function(e, c) { c.setState("ver", 2); } }`)
	if err := pm.LoadFile(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if pm.Count() != 1 {
		t.Fatalf("reload should replace, count = %d", pm.Count())
	}

	pm.ProcessEntry("emulator-5554", pluginEntry("I", "x"))
	pm.mu.RLock()
	plugin := pm.plugins["v"]
	pm.mu.RUnlock()
	plugin.mu.Lock()
	defer plugin.mu.Unlock()
	if ver, _ := plugin.state["ver"].(int64); ver != 2 {
		t.Errorf("expected replaced plugin to run, ver = %v", plugin.state["ver"])
	}
}

func TestPluginManager_UnloadCallsOnDestroy(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "d.js", `
plugin = {
    name: "d",
    onEntry: function(entry, ctx) {},
    onDestroy: function(ctx) { ctx.log("goodbye"); }
}`)

	pm := NewPluginManager(dir)
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if err := pm.Unload("d"); err != nil {
		t.Fatalf("Unload failed: %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("plugin still loaded after Unload")
	}
	if err := pm.Unload("d"); err == nil {
		t.Error("unloading twice should fail")
	}
}

func TestPluginManager_UnloadByPath(t *testing.T) {
	dir := t.TempDir()
	path := writePlugin(t, dir, "p.js", `plugin = { name: "p", onEntry: function(e, c) {} }`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	pm.UnloadByPath(path)
	if pm.Count() != 0 {
		t.Error("UnloadByPath should remove the plugin")
	}
}

func TestPluginManager_ThrowingPluginIsContained(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "bad.js", `plugin = { name: "bad", onEntry: function(e, c) { throw new Error("boom"); } }`)
	writePlugin(t, dir, "good.js", `plugin = { name: "good", onEntry: function(e, c) { c.setState("ran", true); } }`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	// Must not panic or stop the other plugin
	pm.ProcessEntry("emulator-5554", pluginEntry("I", "x"))

	pm.mu.RLock()
	good := pm.plugins["good"]
	pm.mu.RUnlock()
	good.mu.Lock()
	defer good.mu.Unlock()
	if good.state["ran"] != true {
		t.Error("a throwing plugin must not block the others")
	}
}

func TestPluginManager_RunawayPluginInterrupted(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "spin.js", `plugin = { name: "spin", onEntry: function(e, c) { while (true) {} } }`)

	pm := NewPluginManager(dir)
	defer pm.Close()
	if err := pm.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	old := pluginExecTimeout
	pluginExecTimeout = 200 * time.Millisecond
	defer func() { pluginExecTimeout = old }()

	returned := make(chan struct{})
	go func() {
		pm.ProcessEntry("emulator-5554", pluginEntry("I", "x"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessEntry did not return, runaway plugin was never interrupted")
	}

	// The interrupted plugin must not wedge the next dispatch either
	again := make(chan struct{})
	go func() {
		pm.ProcessEntry("emulator-5554", pluginEntry("I", "y"))
		close(again)
	}()
	select {
	case <-again:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch after an interrupt did not return")
	}
}

func TestPluginManager_RejectsInvalidScripts(t *testing.T) {
	dir := t.TempDir()
	pm := NewPluginManager(dir)
	defer pm.Close()

	syntax := writePlugin(t, dir, "syntax.js", `plugin = {{{`)
	if err := pm.LoadFile(syntax); err == nil {
		t.Error("syntax error should fail the load")
	}

	noObj := writePlugin(t, dir, "noobj.js", `var x = 1;`)
	if err := pm.LoadFile(noObj); err == nil {
		t.Error("script without a plugin object should fail the load")
	}

	notFunc := writePlugin(t, dir, "notfunc.js", `plugin = { name: "nf", onEntry: 42 }`)
	if err := pm.LoadFile(notFunc); err == nil {
		t.Error("non-function onEntry should fail the load")
	}
}

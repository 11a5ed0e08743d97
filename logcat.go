package main

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"droidctl/pkg/types"
)

// logcat output formats accepted by `logcat -v`
var logcatFormats = map[string]bool{
	"brief":      true,
	"process":    true,
	"tag":        true,
	"thread":     true,
	"raw":        true,
	"time":       true,
	"threadtime": true,
	"long":       true,
}

const defaultLogcatFormat = "threadtime"

// logcat filter spec priorities (tag:priority)
const logcatPriorities = "vdiwefs"

// failedToExecPattern matches the first stderr line of a logcat subprocess
// that never managed to run at all, as opposed to one that started quietly.
var failedToExecPattern = regexp.MustCompile(`(?i)failed to exec|cannot exec|exec format error|no such file`)

// noisyLogcatPattern matches logcat's own buffer separators, which drown the
// debug echo unless trace logging is explicitly requested
var noisyLogcatPattern = regexp.MustCompile(`^--------- beginning of`)

// stderrPrefix marks entries that arrived on the subprocess stderr stream
const stderrPrefix = "STDERR: "

// logcatStartupTimeout bounds how long Start waits for the first sign of
// life from the spawned subprocess (independent of per-command timeouts)
const logcatStartupTimeout = 10 * time.Second

// Logcat captures the device log stream into a bounded in-memory buffer.
//
// Lifecycle: Idle -> Starting -> Capturing -> Stopping -> Idle. A failed
// start and an unexpected subprocess exit both return to Idle; there is no
// distinct failure state.
type Logcat struct {
	conn           *Connection
	ring           *logRing
	startupTimeout time.Duration
	debug          bool
	debugTrace     bool

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	exited   chan struct{}
	stopping bool

	// cursor tracks the highest ring key handed out by GetLogs; -1 = unset
	cursorMu sync.Mutex
	cursor   int64

	listenerMu sync.RWMutex
	listeners  map[int]func(types.LogEntry)
	listenerID int
}

// LogcatConfig tunes a capture engine instance
type LogcatConfig struct {
	MaxBufferSize  int
	StartupTimeout time.Duration
	Debug          bool
	DebugTrace     bool
}

// NewLogcat creates a capture engine bound to one device connection
func NewLogcat(conn *Connection, cfg LogcatConfig) *Logcat {
	timeout := cfg.StartupTimeout
	if timeout <= 0 {
		timeout = logcatStartupTimeout
	}
	return &Logcat{
		conn:           conn,
		ring:           newLogRing(cfg.MaxBufferSize),
		startupTimeout: timeout,
		debug:          cfg.Debug,
		debugTrace:     cfg.DebugTrace,
		cursor:         -1,
		listeners:      make(map[int]func(types.LogEntry)),
	}
}

// resolveFormat validates the requested output format, falling back to
// threadtime with a logged notice on anything unknown
func resolveFormat(format string) string {
	if format == "" {
		return defaultLogcatFormat
	}
	if logcatFormats[format] {
		return format
	}
	LogWarn("logcat").Str("format", format).Str("fallback", defaultLogcatFormat).Msg("Unrecognized logcat format, using default")
	return defaultLogcatFormat
}

// buildFilterSpecs sanitizes tag[:priority] filter specs:
//   - specs starting with '-' are dropped entirely
//   - a spec with ':' gets its tag defaulted to '*' and its priority
//     validated against the known set (invalid or missing -> 'v')
//   - a bare spec without ':' passes through unchanged (bare category filter)
func buildFilterSpecs(specs []string) []string {
	var out []string
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if strings.HasPrefix(spec, "-") {
			LogWarn("logcat").Str("spec", spec).Msg("Dropping excluded filter spec")
			continue
		}
		if !strings.Contains(spec, ":") {
			out = append(out, spec)
			continue
		}
		parts := strings.SplitN(spec, ":", 2)
		tag, priority := parts[0], parts[1]
		if tag == "" {
			tag = "*"
		}
		if len(priority) != 1 || !strings.Contains(logcatPriorities, strings.ToLower(priority)) {
			LogWarn("logcat").Str("spec", spec).Msg("Invalid filter priority, defaulting to verbose")
			priority = "v"
		}
		out = append(out, tag+":"+strings.ToLower(priority))
	}
	return out
}

// Start spawns the logcat subprocess and begins capturing.
//
// It returns once the first output line arrives on either stream, once the
// subprocess exits before producing output (still treated as started), or
// once the startup timeout elapses. It returns an error if a capture is
// already active or if the subprocess's first stderr line shows the binary
// failed to execute.
func (l *Logcat) Start(ctx context.Context, opts types.LogcatOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		return fmt.Errorf("logcat capture already started for device %s", l.conn.Serial())
	}

	if opts.ClearDeviceLogs {
		l.Clear(ctx)
	}

	args := []string{"logcat", "-v", resolveFormat(opts.Format)}
	args = append(args, buildFilterSpecs(opts.FilterSpecs)...)

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := l.conn.Command(procCtx, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start logcat: %w", err)
	}

	l.cmd = cmd
	l.cancel = cancel
	l.stopping = false
	l.exited = make(chan struct{})

	firstLine := make(chan struct{})
	var firstLineOnce sync.Once
	sawOutput := func() { firstLineOnce.Do(func() { close(firstLine) }) }
	execFailure := make(chan string, 1)

	var readers sync.WaitGroup
	readers.Add(2)

	go func() {
		defer readers.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			sawOutput()
			l.handleLine(scanner.Text(), "")
		}
	}()

	go func() {
		defer readers.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		first := true
		for scanner.Scan() {
			line := scanner.Text()
			if first {
				first = false
				if failedToExecPattern.MatchString(line) {
					select {
					case execFailure <- line:
					default:
					}
					return
				}
			}
			sawOutput()
			l.handleLine(line, stderrPrefix)
		}
	}()

	exited := l.exited
	go func() {
		readers.Wait()
		err := cmd.Wait()
		close(exited)
		l.onExit(cmd, err)
	}()

	LogInfo("logcat").Str("device", l.conn.Serial()).Strs("args", args).Msg("Logcat capture starting")

	select {
	case <-firstLine:
		return nil
	case line := <-execFailure:
		l.stopping = true
		cancel()
		<-exited
		l.clearProcessLocked()
		return fmt.Errorf("logcat binary failed to execute: %s", line)
	case <-exited:
		// The process exiting before any output still counts as started so
		// callers are never left hanging; the exit itself is reported by the
		// exit watcher.
		return nil
	case <-time.After(l.startupTimeout):
		LogWarn("logcat").Str("device", l.conn.Serial()).Msg("No logcat output within startup timeout, assuming quiet stream")
		return nil
	}
}

// handleLine records one received line and notifies subscribers
func (l *Logcat) handleLine(line, prefix string) {
	entry := types.LogEntry{
		Timestamp: time.Now(),
		Level:     "ALL",
		Message:   prefix + line,
	}
	l.ring.Add(entry)

	l.listenerMu.RLock()
	for _, fn := range l.listeners {
		fn(entry)
	}
	l.listenerMu.RUnlock()

	if l.debug && (l.debugTrace || !noisyLogcatPattern.MatchString(line)) {
		LogDebug("logcat").Str("line", entry.Message).Msg("Captured")
	}
}

// onExit runs when the subprocess terminates for any reason. An exit during
// Stop is expected; anything else is an unexpected termination that resets
// the session to idle without surfacing through pending calls.
func (l *Logcat) onExit(cmd *exec.Cmd, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != cmd {
		return // already superseded or cleared by Stop
	}
	if l.stopping {
		return // Stop owns the cleanup
	}

	LogWarn("logcat").Str("device", l.conn.Serial()).Err(err).Msg("Logcat process terminated unexpectedly")
	l.clearProcessLocked()
}

func (l *Logcat) clearProcessLocked() {
	if l.cancel != nil {
		l.cancel()
	}
	l.cmd = nil
	l.cancel = nil
	l.stopping = false
}

// Stop terminates the capture subprocess. Calling Stop with no active
// capture is a harmless no-op. The exit watcher is silenced first so an
// intentional stop is never reported as a crash.
func (l *Logcat) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd == nil {
		return nil
	}

	l.stopping = true
	exited := l.exited

	// Clearing the reference is guaranteed even if termination fails.
	defer l.clearProcessLocked()

	l.cancel()
	if l.cmd.Process != nil {
		_ = l.cmd.Process.Kill()
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		LogWarn("logcat").Str("device", l.conn.Serial()).Msg("Timed out waiting for logcat process to exit")
	}

	LogInfo("logcat").Str("device", l.conn.Serial()).Msg("Logcat capture stopped")
	return nil
}

// Active reports whether a capture subprocess is currently running
func (l *Logcat) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil
}

// GetLogs returns every buffered entry received since the previous GetLogs
// call (or everything buffered, on the first call) and advances the cursor.
// Repeated calls partition the stream: no duplicates, no gaps, unless
// eviction dropped entries before they were ever returned.
func (l *Logcat) GetLogs() []types.LogEntry {
	l.cursorMu.Lock()
	defer l.cursorMu.Unlock()

	entries, last := l.ring.Since(l.cursor)
	l.cursor = last
	return entries
}

// GetAllLogs returns every currently buffered entry, oldest first. It does
// not touch the GetLogs cursor.
func (l *Logcat) GetAllLogs() []types.LogEntry {
	return l.ring.All()
}

// BufferLen returns the number of entries currently retained
func (l *Logcat) BufferLen() int {
	return l.ring.Len()
}

// Clear wipes the device-side log via `logcat -c`. The local buffer is left
// alone. Failures are logged as warnings, never propagated.
func (l *Logcat) Clear(ctx context.Context) {
	if _, err := l.conn.Exec(ctx, ExecOptions{Timeout: 10 * time.Second}, "logcat", "-c"); err != nil {
		LogWarn("logcat").Str("device", l.conn.Serial()).Err(err).Msg("Failed to clear device logs")
	}
}

// OnEntry registers a callback invoked synchronously for every captured
// entry. The returned function removes the subscription.
func (l *Logcat) OnEntry(fn func(types.LogEntry)) func() {
	l.listenerMu.Lock()
	id := l.listenerID
	l.listenerID++
	l.listeners[id] = fn
	l.listenerMu.Unlock()

	return func() {
		l.listenerMu.Lock()
		delete(l.listeners, id)
		l.listenerMu.Unlock()
	}
}

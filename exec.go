package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// linkerWarningPattern matches the noise emitted by adb on some Samsung/older
// devices before the real output. Stripped from stdout and stderr.
var linkerWarningPattern = regexp.MustCompile(`(?m)^WARNING: linker.*$\n?`)

// transientErrorPattern matches errors that usually clear up once the device
// reconnects. Matched against the combined error text, stdout and stderr.
var transientErrorPattern = regexp.MustCompile(
	`(?i)protocol fault|device ('[^']+' )?not found|device still (connecting|authorizing)|device offline|closed`)

// ExecOptions control a single adb invocation
type ExecOptions struct {
	// Timeout for the invocation. Zero falls back to the connection default
	// (the exec_timeout_ms setting).
	Timeout time.Duration
	// Exclusive serializes this command against every other command issued
	// through the same connection.
	Exclusive bool
	// Privileged elevates the shell command via `su root` unless adbd is
	// already running as root.
	Privileged bool
}

// ExecResult carries both output streams of a completed invocation
type ExecResult struct {
	Stdout string
	Stderr string
}

// ExecError is returned for failed adb invocations.
// ExitCode is -1 when the process never produced one (timeout or spawn failure).
type ExecError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Timeout  bool
	// TimeoutAfter is the effective limit the invocation ran against,
	// set whenever Timeout is true.
	TimeoutAfter time.Duration
	Err          error
}

func (e *ExecError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("adb command %q timed out after %v; the limit is controlled by the exec_timeout_ms setting", strings.Join(e.Args, " "), e.TimeoutAfter)
	}
	return fmt.Sprintf("adb command %q failed (exit %d): %s", strings.Join(e.Args, " "), e.ExitCode, firstNonEmpty(e.Stderr, e.Stdout, e.Err.Error()))
}

func (e *ExecError) Unwrap() error { return e.Err }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// commandRunner is the low-level process seam, replaced in tests
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runRealCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Connection represents the device-communication channel: the adb binary, the
// default arguments every invocation carries, and the exclusive-execution
// gate shared by everything talking to the same device.
type Connection struct {
	adbPath     string
	serial      string
	execTimeout time.Duration

	// exclusive is the channel-wide gate: an Exclusive command holds the
	// write side, ordinary commands interleave under the read side.
	exclusive sync.RWMutex

	run commandRunner

	rootMu      sync.Mutex
	rootChecked bool
	isRoot      bool
}

// NewConnection creates a connection to one device (or the adb server itself
// when serial is empty).
func NewConnection(adbPath, serial string, execTimeout time.Duration) *Connection {
	if execTimeout <= 0 {
		execTimeout = 30 * time.Second
	}
	return &Connection{
		adbPath:     adbPath,
		serial:      serial,
		execTimeout: execTimeout,
		run:         runRealCommand,
	}
}

// Serial returns the device serial this connection is bound to
func (c *Connection) Serial() string { return c.serial }

// AdbPath returns the adb binary used by this connection
func (c *Connection) AdbPath() string { return c.adbPath }

// deviceArgs prepends the default argument prefix (-s <serial>)
func (c *Connection) deviceArgs(args ...string) []string {
	if c.serial == "" {
		return args
	}
	return append([]string{"-s", c.serial}, args...)
}

// Command builds an adb subprocess with the connection's default arguments.
// This is the primitive used for long-lived streams (logcat, track-devices);
// the caller owns the returned process.
func (c *Connection) Command(ctx context.Context, args ...string) *exec.Cmd {
	if ctx == nil {
		ctx = context.Background()
	}
	return exec.CommandContext(ctx, c.adbPath, c.deviceArgs(args...)...)
}

// Exec runs an adb command and returns the cleaned stdout.
// Transient connectivity failures are retried exactly once after waiting for
// the device to reappear.
func (c *Connection) Exec(ctx context.Context, opts ExecOptions, args ...string) (string, error) {
	res, err := c.ExecFull(ctx, opts, args...)
	return res.Stdout, err
}

// Shell runs `adb shell <args>`. With opts.Privileged the command is wrapped
// in `su root` unless adbd already runs as root.
func (c *Connection) Shell(ctx context.Context, opts ExecOptions, args ...string) (string, error) {
	if opts.Privileged && !c.IsRoot(ctx) {
		args = append([]string{"su", "root"}, args...)
	}
	return c.Exec(ctx, opts, append([]string{"shell"}, args...)...)
}

// ExecFull runs an adb command and returns both cleaned output streams
func (c *Connection) ExecFull(ctx context.Context, opts ExecOptions, args ...string) (ExecResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Exclusive {
		c.exclusive.Lock()
		defer c.exclusive.Unlock()
	} else {
		c.exclusive.RLock()
		defer c.exclusive.RUnlock()
	}

	res, err := c.execOnce(ctx, opts, args)
	if err == nil {
		return res, nil
	}

	if !isTransientError(err) {
		return res, err
	}

	LogWarn("exec").Err(err).Strs("args", args).Msg("Transient adb failure, waiting for device and retrying once")
	if waitErr := c.waitForDevice(ctx); waitErr != nil {
		LogWarn("exec").Err(waitErr).Msg("Device rediscovery failed, retrying anyway")
	}
	return c.execOnce(ctx, opts, args)
}

// execOnce performs a single invocation with timeout and output cleaning
func (c *Connection) execOnce(ctx context.Context, opts ExecOptions, args []string) (ExecResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.execTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := c.deviceArgs(args...)
	stdout, stderr, err := c.run(runCtx, c.adbPath, full...)

	res := ExecResult{
		Stdout: cleanOutput(string(stdout)),
		Stderr: cleanOutput(string(stderr)),
	}

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	exitCode := -1
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	// Some tool invocations report failure with exit code 0 but still print
	// the wanted output; treat that as a success.
	if exitCode == 0 && res.Stdout != "" {
		return res, nil
	}

	execErr := &ExecError{
		Args:     full,
		ExitCode: exitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Err:      err,
	}
	if runCtx.Err() == context.DeadlineExceeded {
		execErr.Timeout = true
		execErr.TimeoutAfter = timeout
	}
	return res, execErr
}

// isTransientError reports whether err looks like a recoverable connectivity
// fault worth a single reconnect-and-retry cycle
func isTransientError(err error) bool {
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		return false
	}
	if execErr.Timeout {
		return false
	}
	combined := execErr.Err.Error() + "\n" + execErr.Stdout + "\n" + execErr.Stderr
	return transientErrorPattern.MatchString(combined)
}

// waitForDevice polls `adb devices` until this connection's device reports
// state "device" again, bounded by the surrounding context and a fixed cap.
func (c *Connection) waitForDevice(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for {
		stdout, _, err := c.run(waitCtx, c.adbPath, "devices")
		if err == nil {
			if c.serial == "" {
				return nil
			}
			for _, line := range strings.Split(string(stdout), "\n") {
				fields := strings.Fields(line)
				if len(fields) >= 2 && fields[0] == c.serial && fields[1] == "device" {
					return nil
				}
			}
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("device %s did not come back: %w", c.serial, waitCtx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// IsRoot reports whether adbd runs as root on the device. The answer is
// cached for the connection lifetime.
func (c *Connection) IsRoot(ctx context.Context) bool {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()

	if c.rootChecked {
		return c.isRoot
	}

	res, err := c.execOnce(ctx, ExecOptions{Timeout: 5 * time.Second}, []string{"shell", "id", "-u"})
	if err != nil {
		return false
	}
	c.rootChecked = true
	c.isRoot = strings.TrimSpace(res.Stdout) == "0"
	return c.isRoot
}

// cleanOutput strips known noise lines and surrounding whitespace
func cleanOutput(s string) string {
	return strings.TrimSpace(linkerWarningPattern.ReplaceAllString(s, ""))
}

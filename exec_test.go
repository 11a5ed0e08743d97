package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRunner records invocations and plays back scripted responses
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	// responses are consumed in order; the last one repeats
	responses []fakeResponse
}

type fakeResponse struct {
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestConnection(serial string, runner *fakeRunner) *Connection {
	c := NewConnection("adb", serial, 5*time.Second)
	c.run = runner.run
	return c
}

func TestExec_Success(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stdout: "Pixel 6\n"},
	}}
	conn := newTestConnection("emulator-5554", runner)

	out, err := conn.Exec(context.Background(), ExecOptions{}, "shell", "getprop", "ro.product.model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Pixel 6" {
		t.Errorf("expected trimmed stdout 'Pixel 6', got %q", out)
	}
	if runner.callCount() != 1 {
		t.Errorf("expected 1 invocation, got %d", runner.callCount())
	}
}

func TestExec_PrependsSerial(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{stdout: "ok"}}}
	conn := newTestConnection("abc123", runner)

	if _, err := conn.Exec(context.Background(), ExecOptions{}, "get-state"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := runner.calls[0]
	if call[1] != "-s" || call[2] != "abc123" || call[3] != "get-state" {
		t.Errorf("expected [-s abc123 get-state] prefix, got %v", call[1:])
	}
}

func TestExec_NoSerialNoPrefix(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{{stdout: "ok"}}}
	conn := newTestConnection("", runner)

	if _, err := conn.Exec(context.Background(), ExecOptions{}, "devices"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls[0][1] != "devices" {
		t.Errorf("expected bare [devices], got %v", runner.calls[0][1:])
	}
}

func TestExec_StripsLinkerWarnings(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stdout: "WARNING: linker: libdvm.so has text relocations\nreal output\n"},
	}}
	conn := newTestConnection("emulator-5554", runner)

	out, err := conn.Exec(context.Background(), ExecOptions{}, "shell", "ls")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "real output" {
		t.Errorf("expected linker warning stripped, got %q", out)
	}
}

func TestExec_FailureReturnsExecError(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stderr: "adb: no such command", err: fmt.Errorf("exit status 1")},
	}}
	conn := newTestConnection("emulator-5554", runner)

	_, err := conn.Exec(context.Background(), ExecOptions{}, "bogus")
	if err == nil {
		t.Fatal("expected error")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecError, got %T", err)
	}
	if execErr.Stderr != "adb: no such command" {
		t.Errorf("unexpected stderr: %q", execErr.Stderr)
	}
	if !strings.Contains(execErr.Error(), "no such command") {
		t.Errorf("error text should surface stderr: %q", execErr.Error())
	}
}

func TestExec_TransientErrorRetriesOnce(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stderr: "error: device 'abc123' not found", err: fmt.Errorf("exit status 1")},
		{stdout: "abc123\tdevice\n"}, // waitForDevice poll
		{stdout: "recovered"},
	}}
	conn := newTestConnection("abc123", runner)

	out, err := conn.Exec(context.Background(), ExecOptions{}, "shell", "echo", "hi")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if out != "recovered" {
		t.Errorf("expected retried output, got %q", out)
	}
	if runner.callCount() != 3 {
		t.Errorf("expected original + poll + retry = 3 invocations, got %d", runner.callCount())
	}
}

func TestExec_NonTransientErrorNotRetried(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stderr: "adb: invalid argument", err: fmt.Errorf("exit status 1")},
	}}
	conn := newTestConnection("abc123", runner)

	_, err := conn.Exec(context.Background(), ExecOptions{}, "bogus")
	if err == nil {
		t.Fatal("expected error")
	}
	if runner.callCount() != 1 {
		t.Errorf("non-transient failure must not retry, got %d invocations", runner.callCount())
	}
}

func TestExec_TimeoutNotRetried(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{err: fmt.Errorf("signal: killed")},
	}}
	conn := NewConnection("adb", "abc123", 5*time.Second)
	conn.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		runner.mu.Lock()
		runner.calls = append(runner.calls, append([]string{name}, args...))
		runner.mu.Unlock()
		<-ctx.Done()
		return nil, nil, fmt.Errorf("signal: killed")
	}

	_, err := conn.Exec(context.Background(), ExecOptions{Timeout: 20 * time.Millisecond}, "shell", "sleep", "10")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecError, got %T", err)
	}
	if !execErr.Timeout {
		t.Error("expected Timeout flag set")
	}
	if execErr.TimeoutAfter != 20*time.Millisecond {
		t.Errorf("expected TimeoutAfter 20ms, got %v", execErr.TimeoutAfter)
	}
	if !strings.Contains(execErr.Error(), "20ms") {
		t.Errorf("timeout error should state the effective limit: %q", execErr.Error())
	}
	if !strings.Contains(execErr.Error(), "exec_timeout_ms") {
		t.Errorf("timeout error should name the setting: %q", execErr.Error())
	}
	if runner.callCount() != 1 {
		t.Errorf("timeouts must not retry, got %d invocations", runner.callCount())
	}
}

func TestExec_ExclusiveBlocksConcurrent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var order []string
	var orderMu sync.Mutex

	conn := NewConnection("adb", "abc123", 5*time.Second)
	conn.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "slow") {
			close(started)
			<-release
		}
		orderMu.Lock()
		order = append(order, joined)
		orderMu.Unlock()
		return []byte("ok"), nil, nil
	}

	done := make(chan struct{})
	go func() {
		conn.Exec(context.Background(), ExecOptions{Exclusive: true}, "shell", "slow")
		close(done)
	}()

	<-started
	fastDone := make(chan struct{})
	go func() {
		conn.Exec(context.Background(), ExecOptions{}, "shell", "fast")
		close(fastDone)
	}()

	// The fast command must be parked behind the exclusive one
	select {
	case <-fastDone:
		t.Fatal("ordinary command ran while an exclusive command was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	<-fastDone

	orderMu.Lock()
	defer orderMu.Unlock()
	if len(order) != 2 || !strings.Contains(order[0], "slow") {
		t.Errorf("expected exclusive command to finish first, order: %v", order)
	}
}

func TestShell_PrivilegedWrapsInSu(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stdout: "1000"}, // id -u check: not root
		{stdout: "done"},
	}}
	conn := newTestConnection("abc123", runner)

	out, err := conn.Shell(context.Background(), ExecOptions{Privileged: true}, "setprop", "x", "y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("unexpected output: %q", out)
	}
	last := runner.calls[len(runner.calls)-1]
	joined := strings.Join(last, " ")
	if !strings.Contains(joined, "shell su root setprop x y") {
		t.Errorf("expected su root wrapping, got %v", joined)
	}
}

func TestIsTransientError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil-like plain error", fmt.Errorf("boom"), false},
		{"device not found", &ExecError{Err: fmt.Errorf("exit status 1"), Stderr: "error: device 'x' not found"}, true},
		{"protocol fault", &ExecError{Err: fmt.Errorf("protocol fault (couldn't read status)")}, true},
		{"device offline", &ExecError{Err: fmt.Errorf("exit status 1"), Stdout: "error: device offline"}, true},
		{"authorizing", &ExecError{Err: fmt.Errorf("exit status 1"), Stderr: "device still authorizing"}, true},
		{"timeout excluded", &ExecError{Err: fmt.Errorf("device offline"), Timeout: true}, false},
		{"ordinary failure", &ExecError{Err: fmt.Errorf("exit status 1"), Stderr: "Failure [INSTALL_FAILED]"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransientError(tc.err); got != tc.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestCleanOutput(t *testing.T) {
	in := "WARNING: linker: app_process has text relocations\nline1\nWARNING: linker: more noise\nline2\n"
	want := "line1\nline2"
	if got := cleanOutput(in); got != want {
		t.Errorf("cleanOutput = %q, want %q", got, want)
	}
}

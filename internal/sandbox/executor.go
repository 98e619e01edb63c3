package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Executor spawns the shell tool's child processes.
type Executor struct{}

// NewExecutor constructs an Executor. It holds no state; it exists as a type so
// callers can depend on an interface in tests.
func NewExecutor() *Executor { return &Executor{} }

// Exec runs argv to completion or until ctx is canceled, whichever comes
// first. It never returns a Go error — every failure mode surfaces as a
// nonzero ExecResult.ExitCode with a diagnostic on stderr.
func (e *Executor) Exec(ctx context.Context, in ExecInput) ExecResult {
	argv := adaptArgvForHost(in.Argv)
	argv = wrapForVariant(in.Variant, argv, in.WritableRoots, in.NetworkDisabled)
	if len(argv) == 0 {
		return ExecResult{Stderr: "sandbox: empty argv", ExitCode: 1}
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	// exec.Command, not CommandContext: cancellation must reach the whole
	// process group as a delivered signal, never the default kill of the
	// immediate child alone.
	cmd := exec.Command(argv[0], argv[1:]...)
	if strings.TrimSpace(in.WorkDir) != "" {
		cmd.Dir = in.WorkDir
	}
	// Stdin is never inherited or piped: some tools (recursive greps in
	// particular) block indefinitely reading a TTY/pipe stdin.
	cmd.Stdin = nil
	setNewProcessGroup(cmd)

	stdout := newLimitedBuffer(StreamCap)
	stderr := newLimitedBuffer(StreamCap)
	cmd.Stdout = stdout.Writer()
	cmd.Stderr = stderr.Writer()

	started := time.Now()
	startErr := cmd.Start()
	if startErr != nil {
		return ExecResult{
			Stderr:   "sandbox: failed to start command: " + startErr.Error(),
			ExitCode: 1,
			Duration: time.Since(started),
		}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var runErr error
	select {
	case runErr = <-waitDone:
	case <-timeoutCtx.Done():
		// Timeout and external cancellation share the same escalation:
		// SIGTERM -> grace -> SIGKILL against the whole process group.
		_ = signalGroup(cmd, terminateSignal())
		select {
		case runErr = <-waitDone:
		case <-time.After(killGrace):
			_ = signalGroup(cmd, killSignal())
			runErr = <-waitDone
		}
	}
	duration := time.Since(started)

	exitCode := exitCodeFromError(runErr, timeoutCtx)

	return ExecResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		Duration:        duration,
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
	}
}

// exitCodeFromError maps a cmd.Wait() error to an exit code: the real exit
// code when present, 128+signum for a signal exit, 128+SIGKILL for any other
// Wait error once the timeout deadline has passed, 1 otherwise.
func exitCodeFromError(runErr error, timeoutCtx context.Context) int {
	if runErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return 128 + int(killSignal())
	}
	return 1
}

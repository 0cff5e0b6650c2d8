// Package subproc spawns external provider processes. One call is one
// process; the call never returns an error. Every outcome, including
// timeouts and spawn failures, is folded into the Result so callers branch
// on fields instead of catching anything.
package subproc

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// DefaultMaxOutputBytes caps captured stdout/stderr per stream.
const DefaultMaxOutputBytes = 4 * 1024 * 1024

// Result is the fully populated outcome of one process invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Signal   string // terminating signal name, empty when none
	Duration time.Duration
	TimedOut bool
}

// Success reports a clean zero-exit run within the timeout.
func (r Result) Success() bool { return !r.TimedOut && r.ExitCode == 0 }

// Invoker runs provider commands with a wall-clock timeout and bounded
// output capture.
type Invoker struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// New returns an Invoker with the given per-call timeout.
func New(timeout time.Duration) *Invoker {
	return &Invoker{Timeout: timeout, MaxOutputBytes: DefaultMaxOutputBytes}
}

// Run spawns name with args, writes stdin to the process input stream, then
// closes it. The stream must be closed or providers reading until EOF block
// forever. Args are passed as an explicit vector; nothing goes through a
// shell.
func (iv *Invoker) Run(ctx context.Context, name string, args []string, stdin string) Result {
	start := time.Now()

	if iv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)

	limit := iv.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	in, err := cmd.StdinPipe()
	if err != nil {
		return Result{ExitCode: -1, Stderr: err.Error(), Duration: time.Since(start)}
	}

	if err := cmd.Start(); err != nil {
		in.Close()
		return Result{ExitCode: -1, Stderr: err.Error(), Duration: time.Since(start)}
	}

	go func() {
		io.WriteString(in, stdin)
		in.Close()
	}()

	waitErr := cmd.Wait()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}

	switch {
	case waitErr == nil:
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				res.Signal = ws.Signal().String()
			}
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = waitErr.Error()
			}
		}
	}

	return res
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf   []byte
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return string(b.buf) }

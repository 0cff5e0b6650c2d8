package subproc

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_CapturesStdoutAndExitCode(t *testing.T) {
	iv := New(5 * time.Second)

	res := iv.Run(context.Background(), "sh", []string{"-c", "echo hello"}, "")

	if !res.Success() {
		t.Fatalf("Success() = false: %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
}

func TestRun_StdinWrittenAndClosed(t *testing.T) {
	iv := New(5 * time.Second)

	// cat terminates only when its input stream is closed.
	res := iv.Run(context.Background(), "cat", nil, "payload\n")

	if !res.Success() {
		t.Fatalf("Success() = false: %+v", res)
	}
	if res.Stdout != "payload\n" {
		t.Errorf("Stdout = %q, want payload", res.Stdout)
	}
}

func TestRun_NonzeroExit(t *testing.T) {
	iv := New(5 * time.Second)

	res := iv.Run(context.Background(), "sh", []string{"-c", "echo oops >&2; exit 3"}, "")

	if res.Success() {
		t.Fatal("Success() = true for exit 3")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("Stderr = %q, want to contain oops", res.Stderr)
	}
}

func TestRun_TimeoutNeverRaises(t *testing.T) {
	iv := New(100 * time.Millisecond)

	res := iv.Run(context.Background(), "sleep", []string{"10"}, "")

	if !res.TimedOut {
		t.Fatalf("TimedOut = false: %+v", res)
	}
	if res.Success() {
		t.Error("Success() = true for timed-out call")
	}
	if res.Duration < 100*time.Millisecond || res.Duration > 5*time.Second {
		t.Errorf("Duration = %v, want roughly the timeout", res.Duration)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	iv := New(time.Second)

	res := iv.Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, "")

	if res.Success() {
		t.Fatal("Success() = true for missing binary")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if res.Stderr == "" {
		t.Error("Stderr empty, want spawn error text")
	}
}

func TestRun_OutputCapped(t *testing.T) {
	iv := New(5 * time.Second)
	iv.MaxOutputBytes = 64

	res := iv.Run(context.Background(), "sh", []string{"-c", "yes x | head -c 10000"}, "")

	if len(res.Stdout) != 64 {
		t.Errorf("Stdout length = %d, want 64", len(res.Stdout))
	}
	if !res.Success() {
		t.Errorf("Success() = false: %+v", res)
	}
}

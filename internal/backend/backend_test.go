package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/scribeforge/scribe/internal/subproc"
)

func readFileString(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func TestClaude_BuildArgs(t *testing.T) {
	args := Claude{}.BuildArgs(Request{
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "be terse",
		SessionID:    "abc",
	})

	joined := strings.Join(args, " ")
	for _, want := range []string{"--print", "--output-format json", "--model claude-sonnet-4-20250514", "--append-system-prompt be terse", "--session-id abc"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "user prompt") {
		t.Error("user prompt must not appear in args")
	}
}

func TestClaude_ParseResponse(t *testing.T) {
	stdout := `{"type":"result","is_error":false,"result":"the summary","session_id":"s1","model":"claude-sonnet-4","usage":{"input_tokens":120,"output_tokens":40,"cache_read_input_tokens":10,"cache_creation_input_tokens":5},"total_cost_usd":0.0123}`

	resp, err := Claude{}.ParseResponse(stdout)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "the summary" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensIn != 120 || resp.TokensOut != 40 || resp.TokensCacheRead != 10 || resp.TokensCacheWrite != 5 {
		t.Errorf("tokens = %+v", resp)
	}
	if resp.CostUSD != 0.0123 {
		t.Errorf("CostUSD = %f", resp.CostUSD)
	}
}

func TestClaude_ParseResponse_Invalid(t *testing.T) {
	_, err := Claude{}.ParseResponse("not json")

	var ce *CallError
	if !errors.As(err, &ce) || ce.Kind != KindParse {
		t.Fatalf("err = %v, want parse CallError", err)
	}
	if IsRetryable(err) {
		t.Error("parse error must not be retryable")
	}
}

func TestClaude_ParseResponse_ErrorResult(t *testing.T) {
	_, err := Claude{}.ParseResponse(`{"type":"result","is_error":true,"result":"something broke"}`)

	var ce *CallError
	if !errors.As(err, &ce) || ce.Kind != KindSubprocess {
		t.Fatalf("err = %v, want subprocess CallError", err)
	}
}

func TestGemini_ParseResponse_JSONWithStats(t *testing.T) {
	stdout := `{"response":"doc text","stats":{"models":{"gemini-2.5-pro":{"tokens":{"prompt":200,"candidates":90,"cached":15}}}}}`

	resp, err := Gemini{}.ParseResponse(stdout)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "doc text" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensIn != 200 || resp.TokensOut != 90 || resp.TokensCacheRead != 15 {
		t.Errorf("tokens = %+v", resp)
	}
	if resp.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestGemini_ParseResponse_PlainTextFallback(t *testing.T) {
	resp, err := Gemini{}.ParseResponse("plain text answer\n")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "plain text answer" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestOpenCode_StdinPayloadJoinsSystemPrompt(t *testing.T) {
	payload := OpenCode{}.StdinPayload(Request{SystemPrompt: "sys", UserPrompt: "user"})
	if payload != "sys\n\nuser" {
		t.Errorf("payload = %q", payload)
	}
}

func TestClassify_Timeout(t *testing.T) {
	ce := classify("claude", subproc.Result{TimedOut: true, ExitCode: -1})
	if ce.Kind != KindTimeout {
		t.Errorf("Kind = %s, want timeout", ce.Kind)
	}
	if !IsRetryable(ce) {
		t.Error("timeout must be retryable")
	}
}

func TestClassify_RateLimit(t *testing.T) {
	ce := classify("claude", subproc.Result{ExitCode: 1, Stderr: "Error: 429 Too Many Requests"})
	if ce.Kind != KindRateLimit {
		t.Errorf("Kind = %s, want rate_limit", ce.Kind)
	}
	if !IsRetryable(ce) {
		t.Error("rate limit must be retryable")
	}
}

func TestClassify_GenericFailurePermanent(t *testing.T) {
	ce := classify("claude", subproc.Result{ExitCode: 1, Stderr: "segfault"})
	if ce.Kind != KindSubprocess {
		t.Errorf("Kind = %s, want subprocess_error", ce.Kind)
	}
	if IsRetryable(ce) {
		t.Error("generic failure must not be retryable")
	}
}

func TestRegistry_SelectByName(t *testing.T) {
	restore := lookPath
	defer func() { lookPath = restore }()
	lookPath = func(name string) (string, error) {
		if name == "gemini" {
			return "/usr/bin/gemini", nil
		}
		return "", exec.ErrNotFound
	}

	b, err := DefaultRegistry().Select("gemini")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "gemini" {
		t.Errorf("backend = %s, want gemini", b.Name())
	}
}

func TestRegistry_DetectPriorityOrder(t *testing.T) {
	restore := lookPath
	defer func() { lookPath = restore }()
	lookPath = func(name string) (string, error) {
		if name == "claude" || name == "gemini" {
			return "/usr/bin/" + name, nil
		}
		return "", exec.ErrNotFound
	}

	b, err := DefaultRegistry().Detect()
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "claude" {
		t.Errorf("detected %s, want claude (higher priority)", b.Name())
	}
}

func TestRegistry_DetectNoneInstalled(t *testing.T) {
	restore := lookPath
	defer func() { lookPath = restore }()
	lookPath = func(name string) (string, error) { return "", exec.ErrNotFound }

	_, err := DefaultRegistry().Detect()
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("err = %v, want ErrNoBackend", err)
	}
	if !strings.Contains(err.Error(), "npm install") {
		t.Errorf("error lacks install guidance: %v", err)
	}
}

func TestRegistry_SelectConfiguredButMissing(t *testing.T) {
	restore := lookPath
	defer func() { lookPath = restore }()
	lookPath = func(name string) (string, error) { return "", exec.ErrNotFound }

	_, err := DefaultRegistry().Select("claude")
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("err = %v, want ErrNoBackend", err)
	}
}

// shBackend fakes a provider with a shell script so the full
// client -> invoker -> classify -> retry path runs against real processes.
type shBackend struct{ script string }

func (b shBackend) Name() string                    { return "fake" }
func (b shBackend) Command() string                 { return "sh" }
func (b shBackend) IsAvailable() bool               { return true }
func (b shBackend) BuildArgs(req Request) []string  { return []string{"-c", b.script} }
func (b shBackend) StdinPayload(req Request) string { return req.UserPrompt }
func (b shBackend) InstallInstructions() string     { return "" }

func (b shBackend) ParseResponse(stdout string) (*Response, error) {
	return &Response{Content: strings.TrimSpace(stdout)}, nil
}

func TestClient_RetriesTransientThenSucceeds(t *testing.T) {
	marker := t.TempDir() + "/attempted"
	// First attempt rate-limits; second succeeds.
	script := `if [ -f ` + marker + ` ]; then echo recovered; else touch ` + marker + `; echo "429 too many requests" >&2; exit 1; fi`

	client := NewClient(shBackend{script: script}, ClientOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})

	resp, err := client.Call(context.Background(), Request{UserPrompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "recovered" {
		t.Errorf("Content = %q, want recovered", resp.Content)
	}
}

func TestClient_PermanentFailureNotRetried(t *testing.T) {
	counter := t.TempDir() + "/count"
	script := `echo x >> ` + counter + `; echo "hard failure" >&2; exit 1`

	client := NewClient(shBackend{script: script}, ClientOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	})

	_, err := client.Call(context.Background(), Request{UserPrompt: "hi"})
	if err == nil {
		t.Fatal("err = nil, want failure")
	}

	data, readErr := readFileString(counter)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if attempts := strings.Count(data, "x"); attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent failure)", attempts)
	}
}

package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scribeforge/scribe/internal/subproc"
)

// ErrorKind classifies a failed provider call. Only timeouts and rate
// limits are transient; everything else is permanent.
type ErrorKind string

const (
	KindCLINotFound ErrorKind = "cli_not_found"
	KindTimeout     ErrorKind = "timeout"
	KindRateLimit   ErrorKind = "rate_limit"
	KindParse       ErrorKind = "parse_error"
	KindSubprocess  ErrorKind = "subprocess_error"
)

// ErrNoBackend signals that no provider binary could be found. Work must
// not start in this state.
var ErrNoBackend = errors.New("no AI provider CLI found")

// CallError carries the classification of a failed provider call.
type CallError struct {
	Kind     ErrorKind
	Backend  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s call failed (%s)", e.Backend, e.Kind)
	if e.Stderr != "" {
		msg += ": " + firstLine(e.Stderr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind == KindTimeout || ce.Kind == KindRateLimit
	}
	return false
}

// rateLimitMarkers are the stderr fragments providers emit when throttling.
var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"overloaded",
	"quota exceeded",
	"capacity",
}

// classify maps a non-success subprocess result to a CallError.
func classify(name string, res subproc.Result) *CallError {
	ce := &CallError{Backend: name, ExitCode: res.ExitCode, Stderr: res.Stderr}

	switch {
	case res.TimedOut:
		ce.Kind = KindTimeout
	case looksRateLimited(res.Stderr) || looksRateLimited(res.Stdout):
		ce.Kind = KindRateLimit
	default:
		ce.Kind = KindSubprocess
	}
	return ce
}

func looksRateLimited(out string) bool {
	lower := strings.ToLower(out)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

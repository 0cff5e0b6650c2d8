// Package backend adapts external AI command-line providers behind a single
// capability contract. A registry picks a concrete backend at runtime, in
// priority order, by probing which provider binaries are installed.
package backend

import "os/exec"

// Request is one normalized provider call. The user prompt is delivered on
// the provider's stdin; everything else maps to command-line arguments.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	SessionID    string // deterministic UUID for providers that resume sessions
	WorkingDir   string
}

// Response is the normalized provider output.
type Response struct {
	Content          string
	Model            string
	TokensIn         int
	TokensOut        int
	TokensCacheRead  int
	TokensCacheWrite int
	CostUSD          float64
	SessionID        string
}

// Backend is the capability contract each provider adapter satisfies.
type Backend interface {
	// Name is the stable identifier used in config and logs.
	Name() string

	// Command is the provider binary to spawn.
	Command() string

	// IsAvailable reports whether the provider binary is installed.
	IsAvailable() bool

	// BuildArgs produces the argument vector for one call. Prompt text
	// is never part of the args; it is streamed to stdin.
	BuildArgs(req Request) []string

	// StdinPayload is the text streamed to the provider's stdin.
	// Providers with no system-prompt argument fold it in here.
	StdinPayload(req Request) string

	// ParseResponse normalizes raw provider stdout.
	ParseResponse(stdout string) (*Response, error)

	// InstallInstructions is shown when no backend is available.
	InstallInstructions() string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func binaryOnPath(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

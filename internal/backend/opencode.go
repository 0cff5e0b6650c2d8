package backend

import (
	"fmt"
	"strings"
)

// OpenCode adapts the OpenCode CLI. OpenCode emits plain text (its JSON
// format hangs in non-interactive use), so responses carry no usage data.
type OpenCode struct{}

func (OpenCode) Name() string    { return "opencode" }
func (OpenCode) Command() string { return "opencode" }

func (OpenCode) IsAvailable() bool { return binaryOnPath("opencode") }

func (OpenCode) BuildArgs(req Request) []string {
	args := []string{"run"}
	if req.Model != "" {
		args = append(args, "-m", req.Model)
	}
	// System and user prompt are concatenated on stdin; opencode has no
	// separate system-prompt flag in run mode.
	return args
}

func (OpenCode) ParseResponse(stdout string) (*Response, error) {
	content := strings.TrimSpace(stdout)
	if content == "" {
		return nil, &CallError{
			Kind:    KindParse,
			Backend: "opencode",
			Err:     fmt.Errorf("empty provider output"),
		}
	}
	return &Response{Content: content}, nil
}

func (OpenCode) StdinPayload(req Request) string {
	return JoinPrompts(req.SystemPrompt, req.UserPrompt)
}

func (OpenCode) InstallInstructions() string {
	return "install OpenCode: npm install -g opencode-ai"
}

// JoinPrompts merges a system and user prompt for providers without a
// system-prompt argument.
func JoinPrompts(system, user string) string {
	if system == "" {
		return user
	}
	return system + "\n\n" + user
}

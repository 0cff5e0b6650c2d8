package backend

import (
	"encoding/json"
	"fmt"
)

// Claude adapts the Claude Code CLI. Calls run non-interactively with JSON
// output so token usage and cost come back in the result payload.
type Claude struct{}

func (Claude) Name() string    { return "claude" }
func (Claude) Command() string { return "claude" }

func (Claude) IsAvailable() bool { return binaryOnPath("claude") }

func (Claude) BuildArgs(req Request) []string {
	args := []string{
		"--print", // non-interactive, prompt from stdin
		"--output-format", "json",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if req.SessionID != "" {
		args = append(args, "--session-id", req.SessionID)
	}
	return args
}

// claudeResult is the final result object of claude --output-format json.
type claudeResult struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Usage     struct {
		InputTokens         int `json:"input_tokens"`
		OutputTokens        int `json:"output_tokens"`
		CacheReadTokens     int `json:"cache_read_input_tokens"`
		CacheCreationTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func (Claude) ParseResponse(stdout string) (*Response, error) {
	var msg claudeResult
	if err := json.Unmarshal([]byte(stdout), &msg); err != nil {
		return nil, &CallError{
			Kind:    KindParse,
			Backend: "claude",
			Err:     fmt.Errorf("decoding result JSON: %w", err),
		}
	}
	if msg.IsError {
		return nil, &CallError{
			Kind:    KindSubprocess,
			Backend: "claude",
			Err:     fmt.Errorf("provider reported error result: %s", firstLine(msg.Result)),
		}
	}

	return &Response{
		Content:          msg.Result,
		Model:            msg.Model,
		TokensIn:         msg.Usage.InputTokens,
		TokensOut:        msg.Usage.OutputTokens,
		TokensCacheRead:  msg.Usage.CacheReadTokens,
		TokensCacheWrite: msg.Usage.CacheCreationTokens,
		CostUSD:          msg.TotalCostUSD,
		SessionID:        msg.SessionID,
	}, nil
}

func (Claude) StdinPayload(req Request) string { return req.UserPrompt }

func (Claude) InstallInstructions() string {
	return "install Claude Code: npm install -g @anthropic-ai/claude-code"
}

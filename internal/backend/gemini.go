package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Gemini adapts the Gemini CLI. Newer releases support a JSON output format
// with usage stats; older ones print plain text, so parsing falls back.
type Gemini struct{}

func (Gemini) Name() string    { return "gemini" }
func (Gemini) Command() string { return "gemini" }

func (Gemini) IsAvailable() bool { return binaryOnPath("gemini") }

func (Gemini) BuildArgs(req Request) []string {
	args := []string{"--output-format", "json"}
	if req.Model != "" {
		args = append(args, "-m", req.Model)
	}
	return args
}

// geminiResult is the JSON envelope of gemini --output-format json.
type geminiResult struct {
	Response string `json:"response"`
	Stats    struct {
		Models map[string]struct {
			Tokens struct {
				Prompt     int `json:"prompt"`
				Candidates int `json:"candidates"`
				Cached     int `json:"cached"`
			} `json:"tokens"`
		} `json:"models"`
	} `json:"stats"`
}

func (Gemini) ParseResponse(stdout string) (*Response, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, &CallError{
			Kind:    KindParse,
			Backend: "gemini",
			Err:     fmt.Errorf("empty provider output"),
		}
	}

	if strings.HasPrefix(trimmed, "{") {
		var msg geminiResult
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			return nil, &CallError{
				Kind:    KindParse,
				Backend: "gemini",
				Err:     fmt.Errorf("decoding result JSON: %w", err),
			}
		}
		resp := &Response{Content: msg.Response}
		for model, stats := range msg.Stats.Models {
			resp.Model = model
			resp.TokensIn += stats.Tokens.Prompt
			resp.TokensOut += stats.Tokens.Candidates
			resp.TokensCacheRead += stats.Tokens.Cached
		}
		if resp.Content == "" {
			return nil, &CallError{
				Kind:    KindParse,
				Backend: "gemini",
				Err:     fmt.Errorf("result JSON carried no response text"),
			}
		}
		return resp, nil
	}

	// Plain-text fallback for CLI versions without JSON output.
	return &Response{Content: trimmed}, nil
}

func (Gemini) StdinPayload(req Request) string {
	return JoinPrompts(req.SystemPrompt, req.UserPrompt)
}

func (Gemini) InstallInstructions() string {
	return "install Gemini CLI: npm install -g @google/gemini-cli"
}

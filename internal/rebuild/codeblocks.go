package rebuild

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileBlock is one file extracted from a provider response.
type FileBlock struct {
	Path    string
	Content string
}

// ParseFileBlocks extracts path-labeled fenced code blocks from a rebuild
// response. A block opens with a fence whose info string is `path=<rel>`
// and closes with a bare fence of the same length. Paths must stay inside
// the output tree.
func ParseFileBlocks(response string) ([]FileBlock, error) {
	var blocks []FileBlock
	lines := strings.Split(response, "\n")

	for i := 0; i < len(lines); i++ {
		fence, info := splitFence(lines[i])
		if fence == "" || !strings.HasPrefix(info, "path=") {
			continue
		}

		rel, err := cleanRelPath(strings.TrimSpace(strings.TrimPrefix(info, "path=")))
		if err != nil {
			return nil, err
		}

		var body []string
		closed := false
		for i++; i < len(lines); i++ {
			f, rest := splitFence(lines[i])
			if f == fence && rest == "" {
				closed = true
				break
			}
			body = append(body, lines[i])
		}
		if !closed {
			return nil, fmt.Errorf("unterminated code block for %s", rel)
		}

		blocks = append(blocks, FileBlock{
			Path:    rel,
			Content: strings.Join(body, "\n") + "\n",
		})
	}

	return blocks, nil
}

// splitFence returns the backtick run opening a fence line and the info
// string after it, or "" when the line is not a fence.
func splitFence(line string) (fence, info string) {
	trimmed := strings.TrimSpace(line)
	n := 0
	for n < len(trimmed) && trimmed[n] == '`' {
		n++
	}
	if n < 3 {
		return "", ""
	}
	return trimmed[:n], strings.TrimSpace(trimmed[n:])
}

// cleanRelPath validates that a path from a response stays relative and
// inside the output tree.
func cleanRelPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty file path in response")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute file path in response: %s", path)
	}
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file path escapes output dir: %s", path)
	}
	return cleaned, nil
}

// Package consistency cross-checks generated summaries against the source
// files they describe. It is a best-effort heuristic pass: findings are
// reported, never fatal.
package consistency

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// MaxIssues caps the number of findings per report so a badly drifted run
// does not flood the output.
const MaxIssues = 50

// Input pairs one source file with the summary generated for it.
type Input struct {
	Path    string
	Content string
	Summary string
}

// Issue is one finding: an exported identifier present in the source but
// absent from the summary.
type Issue struct {
	Path       string
	Identifier string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: exported %q not mentioned in summary", i.Path, i.Identifier)
}

// Report holds the findings of one consistency pass.
type Report struct {
	Checked   int
	Issues    []Issue
	Truncated bool
}

// ByDir groups the issues by the directory of the offending file.
func (r *Report) ByDir() map[string][]Issue {
	grouped := make(map[string][]Issue)
	for _, iss := range r.Issues {
		dir := filepath.Dir(iss.Path)
		grouped[dir] = append(grouped[dir], iss)
	}
	return grouped
}

var exportedDecl = regexp.MustCompile(`(?m)^(?:func(?:\s*\([^)]*\))?\s+|type\s+|var\s+|const\s+)([A-Z][A-Za-z0-9_]*)`)

// exportedNames extracts top-level exported Go identifiers from source.
// Non-Go files yield nothing, which keeps the pass a no-op for them.
func exportedNames(path, content string) []string {
	if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, m := range exportedDecl.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Check verifies each summary mentions the exported identifiers of its
// source file. Inputs with empty summaries are counted but not flagged;
// a missing summary is a generation failure, not a drift.
func Check(inputs []Input) *Report {
	report := &Report{}

	for _, in := range inputs {
		report.Checked++
		if in.Summary == "" {
			continue
		}

		for _, name := range exportedNames(in.Path, in.Content) {
			if strings.Contains(in.Summary, name) {
				continue
			}
			if len(report.Issues) >= MaxIssues {
				report.Truncated = true
				return report
			}
			report.Issues = append(report.Issues, Issue{Path: in.Path, Identifier: name})
		}
	}

	return report
}

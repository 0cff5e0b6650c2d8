package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const runLogPrefix = "run-"

// WriteRunLog persists the run log under logsDir, named by start time so
// lexicographic ordering doubles as age ordering, then prunes old logs
// beyond keep (0 disables pruning). Returns the written path.
func WriteRunLog(logsDir string, log *RunLog, keep int) (string, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("creating logs dir: %w", err)
	}

	name := runLogPrefix + log.StartTime.UTC().Format("2006-01-02T15-04-05.000") + ".json"
	path := filepath.Join(logsDir, name)

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding run log: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing run log: %w", err)
	}

	if keep > 0 {
		pruneRunLogs(logsDir, keep)
	}

	return path, nil
}

// ReadRunLogs loads up to limit of the most recent run logs, newest
// first. Unreadable or corrupt files are skipped.
func ReadRunLogs(logsDir string, limit int) ([]*RunLog, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading logs dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), runLogPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	var logs []*RunLog
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(logsDir, name))
		if err != nil {
			continue
		}
		var log RunLog
		if err := json.Unmarshal(data, &log); err != nil {
			continue
		}
		logs = append(logs, &log)
	}
	return logs, nil
}

// pruneRunLogs deletes the oldest run logs beyond keep. Best-effort.
func pruneRunLogs(logsDir string, keep int) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), runLogPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		os.Remove(filepath.Join(logsDir, name))
	}
}
